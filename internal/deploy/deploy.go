// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package deploy brings a described service up: it resolves the service's
// environment, builds its manifest, launches the start command and waits for
// the liveness check before marking the deployment live.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/launchpad/internal/build"
	"github.com/toeirei/launchpad/internal/descriptor"
	"github.com/toeirei/launchpad/internal/envvars"
	"github.com/toeirei/launchpad/internal/health"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/manifest"
	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/security"
	"github.com/toeirei/launchpad/internal/topology"
)

// Audit actions written by Deploy.
const (
	ActionStart  = "DEPLOY_START"
	ActionLive   = "DEPLOY_LIVE"
	ActionFailed = "DEPLOY_FAILED"
)

// Store is the part of the database Deploy needs.
type Store interface {
	CreateDeployment(ctx context.Context, d model.Deployment) error
	UpdateDeploymentStatus(ctx context.Context, id string, status model.DeploymentStatus, errText string) error
	LastLiveDeployment(ctx context.Context, service string) (*model.Deployment, error)
	LogAction(ctx context.Context, action string, details string) error
}

// Builder runs the build step; *build.Builder satisfies it.
type Builder interface {
	Run(ctx context.Context, req build.Request) (*build.Result, error)
}

// Prober waits for the liveness check; health.Prober satisfies it.
type Prober interface {
	WaitHealthy(ctx context.Context, url string, interval time.Duration) error
}

// StageError is a deployment failure together with the stage it happened in.
type StageError struct {
	Stage model.DeploymentStatus
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// ErrExited is returned when the instance exits before it became healthy.
var ErrExited = errors.New("service exited before becoming healthy")

// Request describes one deployment.
type Request struct {
	Descriptor  *descriptor.Descriptor
	ServiceName string
	Manifest    *model.Manifest
	// Port is the assigned port; zero picks a free one.
	Port       int
	ForceBuild bool
	Offline    bool
	Version    string
}

// Result is a finished deployment. Instance is nil unless the deployment
// went live.
type Result struct {
	Deployment model.Deployment
	Build      *build.Result
	Instance   Instance
	// Changes compares the manifest with the last live deployment.
	Changes manifest.Changes
}

// Deployer wires the deployment stages together.
type Deployer struct {
	Store    Store
	Builder  Builder
	Launcher Launcher
	Prober   Prober
	// Sources supply values declared with sync: false.
	Sources  envvars.Source
	Generate func() (security.Secret, error)
	Observer Observer

	Now          func() time.Time
	NewID        func() string
	PollInterval time.Duration
}

func (d *Deployer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Deployer) emit(dep *model.Deployment, stage model.DeploymentStatus, msg string, err error) {
	if d.Observer == nil {
		return
	}
	d.Observer.Observe(Event{
		DeploymentID: dep.ID,
		Service:      dep.Service,
		Stage:        stage,
		Message:      msg,
		Err:          err,
		At:           d.now(),
	})
}

// Deploy runs every stage for req. Any failure marks the deployment failed
// and is returned as a *StageError; the result is still returned so callers
// can show what was recorded.
func (d *Deployer) Deploy(ctx context.Context, req Request) (*Result, error) {
	if req.Descriptor == nil {
		return nil, errors.New("no descriptor")
	}
	svc, err := req.Descriptor.Service(req.ServiceName)
	if err != nil {
		return nil, err
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	descFingerprint, err := req.Descriptor.Fingerprint()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	dep := &res.Deployment
	*dep = model.Deployment{
		ID:                    newID(),
		Service:               svc.Name,
		ManifestFingerprint:   manifest.Fingerprint(req.Manifest),
		DescriptorFingerprint: descFingerprint,
		Status:                model.DeploymentPending,
		CreatedAt:             d.now(),
	}
	if req.Manifest != nil {
		dep.Dependencies = req.Manifest.Dependencies
	}
	dep.UpdatedAt = dep.CreatedAt

	// Generated values are fresh on every deploy; a missing external value
	// fails the deployment before anything is built.
	resolver := envvars.Resolver{Sources: d.Sources, Generate: d.Generate}
	env, envErr := resolver.Resolve(svc.EnvVars)
	if envErr == nil {
		defer env.Zero()
		dep.SecretFingerprints = env.Fingerprints()
	} else {
		dep.Status = model.DeploymentFailed
		dep.Error = envErr.Error()
	}

	if err := d.Store.CreateDeployment(ctx, *dep); err != nil {
		return nil, fmt.Errorf("record deployment: %w", err)
	}
	_ = d.Store.LogAction(ctx, ActionStart, fmt.Sprintf("service: %s, deployment: %s", dep.Service, dep.ID))
	d.emit(dep, model.DeploymentPending, i18n.T("deploy.event_pending", dep.ID), nil)
	if envErr != nil {
		return res, d.fail(ctx, dep, model.DeploymentPending, fmt.Errorf("resolve environment: %w", envErr), nil)
	}

	if last, err := d.Store.LastLiveDeployment(ctx, svc.Name); err != nil {
		return res, d.fail(ctx, dep, model.DeploymentPending, fmt.Errorf("load last live deployment: %w", err), nil)
	} else if last != nil {
		res.Changes = manifest.Diff(&model.Manifest{Dependencies: last.Dependencies}, req.Manifest)
	}

	// Build.
	if err := d.advance(ctx, dep, model.DeploymentBuilding); err != nil {
		return res, err
	}
	d.emit(dep, model.DeploymentBuilding, i18n.T("deploy.event_building", len(dep.Dependencies)), nil)
	br, err := d.Builder.Run(ctx, build.Request{
		Service:  svc,
		Manifest: req.Manifest,
		Force:    req.ForceBuild,
		Offline:  req.Offline,
		Env:      env.Environ(),
	})
	res.Build = br
	if err != nil {
		return res, d.fail(ctx, dep, model.DeploymentBuilding, err, nil)
	}
	if br != nil && br.Skipped {
		d.emit(dep, model.DeploymentBuilding, i18n.T("deploy.event_build_skipped"), nil)
	}

	// Start.
	if err := d.advance(ctx, dep, model.DeploymentStarting); err != nil {
		return res, err
	}
	port := req.Port
	if port == 0 {
		if port, err = FreePort(); err != nil {
			return res, d.fail(ctx, dep, model.DeploymentStarting, fmt.Errorf("assign port: %w", err), nil)
		}
	}
	vars := env.Map()
	vars["PORT"] = strconv.Itoa(port)
	top, err := topology.ParseStartCommand(svc.StartCommand, topology.MapLookup(vars))
	if err != nil {
		return res, d.fail(ctx, dep, model.DeploymentStarting, err, nil)
	}
	d.emit(dep, model.DeploymentStarting, i18n.T("deploy.event_starting", top.Workers, top.Threads, top.Bind), nil)
	inst, err := d.Launcher.Launch(ctx, LaunchSpec{
		Service:  svc,
		Topology: top,
		Env:      env,
		Port:     port,
		Version:  req.Version,
	})
	if err != nil {
		return res, d.fail(ctx, dep, model.DeploymentStarting, fmt.Errorf("launch: %w", err), nil)
	}

	// Health.
	path := svc.HealthCheckPath
	if path == "" {
		path = descriptor.DefaultHealthCheckPath
	}
	url := inst.URL() + path
	d.emit(dep, model.DeploymentStarting, i18n.T("deploy.event_waiting", url, top.Timeout), nil)
	if err := d.waitHealthy(ctx, inst, url, top.Timeout); err != nil {
		return res, d.fail(ctx, dep, model.DeploymentStarting, err, inst)
	}

	if err := d.advance(ctx, dep, model.DeploymentLive); err != nil {
		_ = inst.Stop(context.Background())
		return res, err
	}
	_ = d.Store.LogAction(ctx, ActionLive, fmt.Sprintf("service: %s, deployment: %s, url: %s", dep.Service, dep.ID, inst.URL()))
	d.emit(dep, model.DeploymentLive, i18n.T("deploy.event_live", inst.URL()), nil)
	res.Instance = inst
	return res, nil
}

// waitHealthy polls the liveness route for at most timeout and gives up
// early when the instance exits.
func (d *Deployer) waitHealthy(ctx context.Context, inst Instance, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exited := make(chan struct{})
	go func() {
		select {
		case <-inst.Done():
			close(exited)
			cancel()
		case <-ctx.Done():
		}
	}()

	prober := d.Prober
	if prober == nil {
		prober = health.Prober{Timeout: 5 * time.Second}
	}
	err := prober.WaitHealthy(ctx, url, d.PollInterval)
	if err == nil {
		return nil
	}
	select {
	case <-exited:
		if exitErr := inst.Err(); exitErr != nil {
			return fmt.Errorf("%w: %v", ErrExited, exitErr)
		}
		return ErrExited
	default:
	}
	return fmt.Errorf("health check %s: %w", url, err)
}

func (d *Deployer) advance(ctx context.Context, dep *model.Deployment, status model.DeploymentStatus) error {
	if err := d.updateStatus(ctx, dep.ID, status, ""); err != nil {
		return &StageError{Stage: dep.Status, Err: fmt.Errorf("record status %s: %w", status, err)}
	}
	dep.Status = status
	dep.UpdatedAt = d.now()
	return nil
}

// fail records the failure, stops inst if it was started and reports it.
func (d *Deployer) fail(ctx context.Context, dep *model.Deployment, stage model.DeploymentStatus, cause error, inst Instance) error {
	if inst != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = inst.Stop(stopCtx)
		cancel()
	}
	// The failure is recorded even when ctx was cancelled.
	recCtx := context.WithoutCancel(ctx)
	if err := d.updateStatus(recCtx, dep.ID, model.DeploymentFailed, cause.Error()); err != nil {
		cause = errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	dep.Status = model.DeploymentFailed
	dep.Error = cause.Error()
	dep.UpdatedAt = d.now()
	_ = d.Store.LogAction(recCtx, ActionFailed, fmt.Sprintf("service: %s, deployment: %s, stage: %s", dep.Service, dep.ID, stage))
	d.emit(dep, model.DeploymentFailed, i18n.T("deploy.event_failed", stage), cause)
	return &StageError{Stage: stage, Err: cause}
}

// updateStatus retries briefly while SQLite reports the database as locked.
func (d *Deployer) updateStatus(ctx context.Context, id string, status model.DeploymentStatus, errText string) error {
	var err error
	for i := 0; i < 5; i++ {
		if err = d.Store.UpdateDeploymentStatus(ctx, id, status, errText); err == nil || !strings.Contains(err.Error(), "database is locked") {
			break
		}
		time.Sleep(time.Duration(50+rand.IntN(100)) * time.Millisecond)
	}
	return err
}
