package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestRunMigrationsSqlite(t *testing.T) {
	dsn := "file:test_migrations?mode=memory&cache=shared"
	dbConn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer func() { _ = dbConn.Close() }()

	if err := RunMigrations(dbConn, "sqlite"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	rows, err := dbConn.Query("SELECT version FROM schema_migrations")
	if err != nil {
		t.Fatalf("query schema_migrations failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan version failed: %v", err)
		}
		versions = append(versions, v)
	}

	if len(versions) < 1 {
		t.Fatalf("expected at least 1 migration applied, got %d", len(versions))
	}

	want := map[string]bool{
		"000001_create_initial_tables": true,
	}
	for _, v := range versions {
		if _, ok := want[v]; ok {
			delete(want, v)
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing expected migrations: %v", want)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	dsn := "file:test_migrations_twice?mode=memory&cache=shared"
	dbConn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer func() { _ = dbConn.Close() }()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(dbConn, "sqlite"); err != nil {
			t.Fatalf("RunMigrations run %d failed: %v", i+1, err)
		}
	}
	var n int
	if err := dbConn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one recorded migration, got %d", n)
	}
}

func TestRunMigrations_UnknownDialect(t *testing.T) {
	dbConn, err := sql.Open("sqlite", "file:test_migrations_unknown?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = dbConn.Close() }()
	if err := RunMigrations(dbConn, "oracle"); err == nil {
		t.Fatal("expected error for a dialect without migrations")
	}
}
