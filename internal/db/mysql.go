// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql" // MySQL driver
)

// MySQLStore is the MySQL implementation of the Store interface.
type MySQLStore struct {
	*bunStore
}

// Maintenance runs OPTIMIZE TABLE for every table.
func (s *MySQLStore) Maintenance(ctx context.Context) error {
	var tables []string
	if err := QueryRawInto(ctx, s.bun, &tables, "SHOW TABLES"); err != nil {
		return fmt.Errorf("mysql show tables failed: %w", err)
	}
	var lastErr error
	for _, table := range tables {
		if _, err := ExecRaw(ctx, s.bun, fmt.Sprintf("OPTIMIZE TABLE `%s`", table)); err != nil {
			// Non-fatal per-table: remember last error and continue
			dbLogf("db: mysql optimize table %s failed: %v", table, err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
	}
	return nil
}

// normalizeMySQLDSN enables parseTime so DATETIME columns scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
