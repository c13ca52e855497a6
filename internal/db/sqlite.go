// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SqliteStore is the SQLite implementation of the Store interface.
type SqliteStore struct {
	*bunStore
}

// Maintenance runs PRAGMA optimize, VACUUM, a WAL checkpoint and an
// integrity check.
func (s *SqliteStore) Maintenance(ctx context.Context) error {
	// PRAGMA optimize may not be supported in some environments (e.g.
	// in-memory filesystems); treat optimize errors as non-fatal.
	if _, err := ExecRaw(ctx, s.bun, "PRAGMA optimize"); err != nil {
		dbLogf("db: sqlite optimize failed (ignored): %v", err)
	}
	if _, err := ExecRaw(ctx, s.bun, "VACUUM"); err != nil {
		return fmt.Errorf("sqlite vacuum failed: %w", err)
	}
	// WAL checkpoint; ignore errors if not supported.
	_, _ = ExecRaw(ctx, s.bun, "PRAGMA wal_checkpoint(TRUNCATE)")
	var res string
	if err := QueryRawInto(ctx, s.bun, &res, "PRAGMA integrity_check"); err != nil {
		return fmt.Errorf("sqlite integrity_check failed: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("sqlite integrity_check failed: %s", res)
	}
	for _, table := range []string{"deployments", "builds", "audit_log"} {
		if n, err := s.countRows(ctx, table); err == nil {
			dbLogf("db: %s holds %d rows", table, n)
		}
	}
	return nil
}
