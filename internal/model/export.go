// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package model

// ExportData is a container for all data written by `launchpad export`.
type ExportData struct {
	// SchemaVersion helps in handling imports of older exports.
	SchemaVersion int `json:"schema_version"`

	Deployments     []Deployment    `json:"deployments"`
	Builds          []Build         `json:"builds"`
	AuditLogEntries []AuditLogEntry `json:"audit_log_entries"`
}
