// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/toeirei/launchpad/internal/model"
	"github.com/uptrace/bun"
)

// BuildModel maps the builds table.
type BuildModel struct {
	bun.BaseModel  `bun:"table:builds"`
	ID             int       `bun:"id,pk,autoincrement"`
	Service        string    `bun:"service"`
	Fingerprint    string    `bun:"fingerprint"`
	RuntimeVersion string    `bun:"runtime_version"`
	Status         string    `bun:"status"`
	CreatedAt      time.Time `bun:"created_at"`
}

// DeploymentModel maps the deployments table. Structured columns are JSON text.
type DeploymentModel struct {
	bun.BaseModel         `bun:"table:deployments"`
	ID                    string    `bun:"id,pk"`
	Service               string    `bun:"service"`
	ManifestFingerprint   string    `bun:"manifest_fingerprint"`
	DescriptorFingerprint string    `bun:"descriptor_fingerprint"`
	Dependencies          string    `bun:"dependencies"`
	SecretFingerprints    string    `bun:"secret_fingerprints"`
	Status                string    `bun:"status"`
	Error                 string    `bun:"error"`
	CreatedAt             time.Time `bun:"created_at"`
	UpdatedAt             time.Time `bun:"updated_at"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int       `bun:"id,pk,autoincrement"`
	Timestamp     time.Time `bun:"timestamp"`
	Username      string    `bun:"username"`
	Action        string    `bun:"action"`
	Details       string    `bun:"details"`
}

// --- Mapping helpers (centralized conversions) ---
func buildModelToModel(b BuildModel) model.Build {
	return model.Build{
		ID:             b.ID,
		Service:        b.Service,
		Fingerprint:    b.Fingerprint,
		RuntimeVersion: b.RuntimeVersion,
		Status:         model.BuildStatus(b.Status),
		CreatedAt:      b.CreatedAt.UTC(),
	}
}

func deploymentToModelRow(d model.Deployment) (DeploymentModel, error) {
	deps := d.Dependencies
	if deps == nil {
		deps = []model.Dependency{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return DeploymentModel{}, fmt.Errorf("encode dependencies: %w", err)
	}
	fps := d.SecretFingerprints
	if fps == nil {
		fps = map[string]string{}
	}
	fpsJSON, err := json.Marshal(fps)
	if err != nil {
		return DeploymentModel{}, fmt.Errorf("encode secret fingerprints: %w", err)
	}
	return DeploymentModel{
		ID:                    d.ID,
		Service:               d.Service,
		ManifestFingerprint:   d.ManifestFingerprint,
		DescriptorFingerprint: d.DescriptorFingerprint,
		Dependencies:          string(depsJSON),
		SecretFingerprints:    string(fpsJSON),
		Status:                string(d.Status),
		Error:                 d.Error,
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}, nil
}

func deploymentModelToModel(m DeploymentModel) (model.Deployment, error) {
	d := model.Deployment{
		ID:                    m.ID,
		Service:               m.Service,
		ManifestFingerprint:   m.ManifestFingerprint,
		DescriptorFingerprint: m.DescriptorFingerprint,
		Status:                model.DeploymentStatus(m.Status),
		Error:                 m.Error,
		CreatedAt:             m.CreatedAt.UTC(),
		UpdatedAt:             m.UpdatedAt.UTC(),
	}
	if m.Dependencies != "" {
		if err := json.Unmarshal([]byte(m.Dependencies), &d.Dependencies); err != nil {
			return d, fmt.Errorf("decode dependencies of deployment %s: %w", m.ID, err)
		}
	}
	if m.SecretFingerprints != "" {
		if err := json.Unmarshal([]byte(m.SecretFingerprints), &d.SecretFingerprints); err != nil {
			return d, fmt.Errorf("decode secret fingerprints of deployment %s: %w", m.ID, err)
		}
	}
	if len(d.SecretFingerprints) == 0 {
		d.SecretFingerprints = nil
	}
	if len(d.Dependencies) == 0 {
		d.Dependencies = nil
	}
	return d, nil
}

func auditLogModelToModel(a AuditLogModel) model.AuditLogEntry {
	return model.AuditLogEntry{
		ID:        a.ID,
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
		Username:  a.Username,
		Action:    a.Action,
		Details:   a.Details,
	}
}

// bunStore holds the dialect-independent queries shared by every backend.
type bunStore struct {
	bun *bun.DB
}

func (s *bunStore) clock() time.Time {
	return time.Now().UTC()
}

// RecordBuild inserts a build and returns its ID.
func (s *bunStore) RecordBuild(ctx context.Context, b model.Build) (int, error) {
	created := b.CreatedAt
	if created.IsZero() {
		created = s.clock()
	}
	bm := &BuildModel{
		Service:        b.Service,
		Fingerprint:    b.Fingerprint,
		RuntimeVersion: b.RuntimeVersion,
		Status:         string(b.Status),
		CreatedAt:      created.UTC(),
	}
	if _, err := s.bun.NewInsert().Model(bm).Column("service", "fingerprint", "runtime_version", "status", "created_at").Returning("id").Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return bm.ID, nil
}

// LastSuccessfulBuild returns the newest successful build matching the
// service, manifest fingerprint and runtime, or nil.
func (s *bunStore) LastSuccessfulBuild(ctx context.Context, service, fingerprint, runtime string) (*model.Build, error) {
	var bm BuildModel
	err := s.bun.NewSelect().Model(&bm).
		Where("service = ?", service).
		Where("fingerprint = ?", fingerprint).
		Where("runtime_version = ?", runtime).
		Where("status = ?", string(model.BuildSucceeded)).
		OrderExpr("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b := buildModelToModel(bm)
	return &b, nil
}

// ListBuilds returns builds newest first.
func (s *bunStore) ListBuilds(ctx context.Context, service string, limit int) ([]model.Build, error) {
	var bms []BuildModel
	q := s.bun.NewSelect().Model(&bms).OrderExpr("id DESC")
	if service != "" {
		q = q.Where("service = ?", service)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Build, 0, len(bms))
	for _, b := range bms {
		out = append(out, buildModelToModel(b))
	}
	return out, nil
}

// CreateDeployment inserts a new deployment record.
func (s *bunStore) CreateDeployment(ctx context.Context, d model.Deployment) error {
	if d.ID == "" {
		return errors.New("deployment id is required")
	}
	now := s.clock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	dm, err := deploymentToModelRow(d)
	if err != nil {
		return err
	}
	if _, err := s.bun.NewInsert().Model(&dm).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	return nil
}

// UpdateDeploymentStatus moves a deployment to status. errText replaces the
// stored error text.
func (s *bunStore) UpdateDeploymentStatus(ctx context.Context, id string, status model.DeploymentStatus, errText string) error {
	res, err := s.bun.NewUpdate().Model((*DeploymentModel)(nil)).
		Set("status = ?", string(status)).
		Set("error = ?", errText).
		Set("updated_at = ?", s.clock()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("deployment %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetDeployment returns the deployment with id or ErrNotFound.
func (s *bunStore) GetDeployment(ctx context.Context, id string) (*model.Deployment, error) {
	var dm DeploymentModel
	if err := s.bun.NewSelect().Model(&dm).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("deployment %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	d, err := deploymentModelToModel(dm)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeployments returns deployments newest first.
func (s *bunStore) ListDeployments(ctx context.Context, service string, limit int) ([]model.Deployment, error) {
	var dms []DeploymentModel
	q := s.bun.NewSelect().Model(&dms).OrderExpr("created_at DESC, id DESC")
	if service != "" {
		q = q.Where("service = ?", service)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Deployment, 0, len(dms))
	for _, dm := range dms {
		d, err := deploymentModelToModel(dm)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// LastLiveDeployment returns the newest live deployment of service, or nil.
func (s *bunStore) LastLiveDeployment(ctx context.Context, service string) (*model.Deployment, error) {
	var dm DeploymentModel
	err := s.bun.NewSelect().Model(&dm).
		Where("service = ?", service).
		Where("status = ?", string(model.DeploymentLive)).
		OrderExpr("created_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := deploymentModelToModel(dm)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetAllAuditLogEntries retrieves audit log entries ordered by timestamp desc.
func (s *bunStore) GetAllAuditLogEntries(ctx context.Context) ([]model.AuditLogEntry, error) {
	var am []AuditLogModel
	if err := s.bun.NewSelect().Model(&am).OrderExpr("timestamp DESC, id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(am))
	for _, a := range am {
		out = append(out, auditLogModelToModel(a))
	}
	return out, nil
}

// LogAction inserts an audit log entry with the current OS user.
func (s *bunStore) LogAction(ctx context.Context, action string, details string) error {
	am := &AuditLogModel{
		Timestamp: s.clock(),
		Username:  currentUsername(),
		Action:    action,
		Details:   details,
	}
	_, err := s.bun.NewInsert().Model(am).Column("timestamp", "username", "action", "details").Returning("id").Exec(ctx)
	return MapDBError(err)
}

// ExportData reads every table into a model.ExportData inside one transaction.
func (s *bunStore) ExportData(ctx context.Context) (*model.ExportData, error) {
	var out *model.ExportData
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		out = &model.ExportData{SchemaVersion: 1}

		var dms []DeploymentModel
		if err := tx.NewSelect().Model(&dms).OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, dm := range dms {
			d, err := deploymentModelToModel(dm)
			if err != nil {
				return err
			}
			out.Deployments = append(out.Deployments, d)
		}

		var bms []BuildModel
		if err := tx.NewSelect().Model(&bms).OrderExpr("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, b := range bms {
			out.Builds = append(out.Builds, buildModelToModel(b))
		}

		var als []AuditLogModel
		if err := tx.NewSelect().Model(&als).OrderExpr("id ASC").Scan(ctx); err != nil {
			return err
		}
		for _, a := range als {
			out.AuditLogEntries = append(out.AuditLogEntries, auditLogModelToModel(a))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return out, nil
}

// countRows reports the number of rows in table.
func (s *bunStore) countRows(ctx context.Context, table string) (int, error) {
	var n int
	if err := QueryRawInto(ctx, s.bun, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, err
	}
	return n, nil
}

// Close releases the underlying connection pool.
func (s *bunStore) Close() error {
	return s.bun.Close()
}

func currentUsername() string {
	curUser, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if parts := strings.Split(curUser.Username, `\`); len(parts) > 1 {
		return parts[1]
	}
	return curUser.Username
}
