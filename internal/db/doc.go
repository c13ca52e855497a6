// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db provides the data access layer for Launchpad: build records,
// deployment history and the audit log.
//
// The underlying database (SQLite, PostgreSQL or MySQL) is hidden behind the
// Store interface. All backends share the Bun queries in bun_adapter.go; the
// per-engine types only differ in connection setup and maintenance.
//
// Testing notes
//   - Prefer `db.New("sqlite", "file:<name>?mode=memory&cache=shared")` in
//     tests that need real DB semantics and migrations.
//   - POSTGRES_DSN and MYSQL_DSN enable the cross-backend tests.
package db
