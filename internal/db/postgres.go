// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// PostgresStore is the PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	*bunStore
}

// Maintenance runs VACUUM ANALYZE.
func (s *PostgresStore) Maintenance(ctx context.Context) error {
	if _, err := ExecRaw(ctx, s.bun, "VACUUM ANALYZE"); err != nil {
		return fmt.Errorf("postgres vacuum failed: %w", err)
	}
	return nil
}

// checkPostgresDSN rejects malformed connection strings before a pool is
// opened; database/sql would otherwise only fail on first use.
func checkPostgresDSN(dsn string) error {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return nil
}
