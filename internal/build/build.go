// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package build runs the build step of a service: every pinned dependency is
// resolved against the package index, checked against the pinned runtime,
// and the service's build command is executed to install them.
package build

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toeirei/launchpad/internal/descriptor"
	"github.com/toeirei/launchpad/internal/index"
	"github.com/toeirei/launchpad/internal/logging"
	"github.com/toeirei/launchpad/internal/manifest"
	"github.com/toeirei/launchpad/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel index lookups.
const DefaultConcurrency = 8

var (
	// ErrNoRuntime is returned when a python service does not pin its runtime.
	ErrNoRuntime = errors.New("runtime version is not pinned")
	// ErrEmptyManifest is returned for a manifest without dependencies.
	ErrEmptyManifest = errors.New("manifest declares no dependencies")
)

// Resolver looks up release metadata. *index.Client implements it.
type Resolver interface {
	Release(ctx context.Context, name, version string) (*index.Release, error)
}

// Installer runs a build command with the given environment.
type Installer interface {
	Install(ctx context.Context, command string, env []string) error
}

// Records is the part of the store the builder needs.
type Records interface {
	RecordBuild(ctx context.Context, b model.Build) (int, error)
	LastSuccessfulBuild(ctx context.Context, service, fingerprint, runtime string) (*model.Build, error)
}

// Failure is a single dependency that could not be accepted.
type Failure struct {
	Dependency model.Dependency
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("line %d: %s: %v", f.Dependency.Line, f.Dependency, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Error aggregates everything that made a build fail.
type Error struct {
	Service  string
	Failures []Failure
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "build of %s failed", e.Service)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Request describes one build.
type Request struct {
	Service  model.Service
	Manifest *model.Manifest
	// Force rebuilds even if an identical successful build exists.
	Force bool
	// Offline skips index resolution.
	Offline bool
	// Env is passed to the build command in addition to the runtime pin.
	Env []string
}

// Result is what a build produced.
type Result struct {
	Build    model.Build
	Releases []*index.Release
	Skipped  bool
}

// Builder performs builds.
type Builder struct {
	Resolver    Resolver
	Installer   Installer
	Store       Records
	Concurrency int
	Now         func() time.Time
}

// Run builds req.Service. A *Error is returned when the build fails; the
// failed attempt is still recorded.
func (b *Builder) Run(ctx context.Context, req Request) (*Result, error) {
	svc := req.Service
	runtime := descriptor.RuntimeVersion(svc)
	fp := manifest.Fingerprint(req.Manifest)
	res := &Result{Build: model.Build{
		Service:        svc.Name,
		Fingerprint:    fp,
		RuntimeVersion: runtime,
		CreatedAt:      b.now(),
	}}

	if runtime == "" && (svc.Env == "" || svc.Env == "python") {
		return res, b.fail(ctx, res, &Error{Service: svc.Name, Err: ErrNoRuntime})
	}
	if req.Manifest == nil || len(req.Manifest.Dependencies) == 0 {
		return res, b.fail(ctx, res, &Error{Service: svc.Name, Err: ErrEmptyManifest})
	}

	if !req.Force && b.Store != nil {
		prev, err := b.Store.LastSuccessfulBuild(ctx, svc.Name, fp, runtime)
		if err != nil {
			return res, fmt.Errorf("look up previous builds: %w", err)
		}
		if prev != nil {
			logging.Infof("build of %s skipped: identical build %d from %s", svc.Name, prev.ID, prev.CreatedAt.Format(time.RFC3339))
			res.Build = *prev
			res.Skipped = true
			return res, nil
		}
	}

	if !req.Offline && b.Resolver != nil {
		releases, failures, err := b.resolve(ctx, req.Manifest.Dependencies, runtime)
		if err != nil {
			return res, err
		}
		res.Releases = releases
		if len(failures) > 0 {
			return res, b.fail(ctx, res, &Error{Service: svc.Name, Failures: failures})
		}
	}

	if svc.BuildCommand != "" && b.Installer != nil {
		env := append([]string(nil), req.Env...)
		if runtime != "" {
			env = append(env, descriptor.RuntimeVersionKey+"="+runtime)
		}
		logging.Infof("running build command for %s", svc.Name)
		if err := b.Installer.Install(ctx, svc.BuildCommand, env); err != nil {
			return res, b.fail(ctx, res, &Error{Service: svc.Name, Err: err})
		}
	}

	res.Build.Status = model.BuildSucceeded
	if err := b.record(ctx, res); err != nil {
		return res, err
	}
	logging.Infof("build of %s succeeded (%d dependencies, runtime %s)", svc.Name, len(req.Manifest.Dependencies), runtime)
	return res, nil
}

// resolve looks up every dependency concurrently. Per-dependency problems are
// collected as failures; only context cancellation aborts the whole step.
func (b *Builder) resolve(ctx context.Context, deps []model.Dependency, runtime string) ([]*index.Release, []Failure, error) {
	limit := b.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	releases := make([]*index.Release, len(deps))
	var failures []Failure
	addFailure := func(d model.Dependency, err error) {
		mu.Lock()
		failures = append(failures, Failure{Dependency: d, Err: err})
		mu.Unlock()
	}

	for i, d := range deps {
		g.Go(func() error {
			rel, err := b.Resolver.Release(gctx, d.Name, d.Version)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				addFailure(d, err)
				return nil
			}
			releases[i] = rel
			if rel.Yanked {
				reason := rel.YankedReason
				if reason == "" {
					reason = "no reason given"
				}
				addFailure(d, fmt.Errorf("%w: %s", index.ErrYanked, reason))
				return nil
			}
			if runtime == "" || rel.RequiresPython == "" {
				return nil
			}
			ok, err := index.Compatible(rel.RequiresPython, runtime)
			switch {
			case err != nil:
				logging.Warnf("cannot evaluate requires_python %q of %s: %v", rel.RequiresPython, d, err)
			case !ok:
				addFailure(d, fmt.Errorf("%w: requires %s, runtime is %s", index.ErrIncompatible, rel.RequiresPython, runtime))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("resolve dependencies: %w", err)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Dependency.Line < failures[j].Dependency.Line })
	return releases, failures, nil
}

func (b *Builder) fail(ctx context.Context, res *Result, berr *Error) error {
	res.Build.Status = model.BuildFailed
	if err := b.record(ctx, res); err != nil {
		logging.Errorf("could not record failed build of %s: %v", berr.Service, err)
	}
	logging.Errorf("%v", berr)
	return berr
}

func (b *Builder) record(ctx context.Context, res *Result) error {
	if b.Store == nil {
		return nil
	}
	id, err := b.Store.RecordBuild(ctx, res.Build)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	res.Build.ID = id
	return nil
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}
