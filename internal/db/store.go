// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"

	"github.com/toeirei/launchpad/internal/model"
)

// Store defines the interface for all database operations in Launchpad.
// This allows for multiple database backends to be implemented.
type Store interface {
	// Build methods
	RecordBuild(ctx context.Context, b model.Build) (int, error)
	// LastSuccessfulBuild returns nil, nil when no matching build exists.
	LastSuccessfulBuild(ctx context.Context, service, fingerprint, runtime string) (*model.Build, error)
	ListBuilds(ctx context.Context, service string, limit int) ([]model.Build, error)

	// Deployment methods
	CreateDeployment(ctx context.Context, d model.Deployment) error
	UpdateDeploymentStatus(ctx context.Context, id string, status model.DeploymentStatus, errText string) error
	GetDeployment(ctx context.Context, id string) (*model.Deployment, error)
	// ListDeployments returns the newest deployments first. An empty service
	// lists every service; limit <= 0 means no limit.
	ListDeployments(ctx context.Context, service string, limit int) ([]model.Deployment, error)
	// LastLiveDeployment returns nil, nil when the service was never live.
	LastLiveDeployment(ctx context.Context, service string) (*model.Deployment, error)

	// Audit Log methods
	GetAllAuditLogEntries(ctx context.Context) ([]model.AuditLogEntry, error)
	LogAction(ctx context.Context, action string, details string) error

	// Export
	ExportData(ctx context.Context) (*model.ExportData, error)

	// Maintenance runs engine-specific housekeeping on the open connection.
	Maintenance(ctx context.Context) error
	Close() error
}
