// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// debug_export prints a summary of a `launchpad export` file. Without an
// argument it seeds an in-memory database and summarises its export, which
// is a quick way to check the store and the export format end to end.
//
// Usage:
//
//	go run ./tools/debug_export [launchpad-export-YYYY-MM-DD.json.zst]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/launchpad/internal/db"
	"github.com/toeirei/launchpad/internal/model"
)

func main() {
	var (
		data *model.ExportData
		err  error
	)
	if len(os.Args) > 1 {
		data, err = readExport(os.Args[1])
	} else {
		data, err = seededExport(context.Background())
	}
	if err != nil {
		log.Fatal("debug_export", "err", err)
	}
	summarize(os.Stdout, data)
}

func readExport(path string) (*model.ExportData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer zr.Close()
	var data model.ExportData
	if err := json.NewDecoder(zr).Decode(&data); err != nil {
		return nil, fmt.Errorf("could not decode export: %w", err)
	}
	return &data, nil
}

func seededExport(ctx context.Context) (*model.ExportData, error) {
	store, err := db.New("sqlite", "file:debprobe?mode=memory&cache=shared")
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	now := time.Now().UTC()
	if _, err := store.RecordBuild(ctx, model.Build{
		Service:        "web",
		Fingerprint:    "debug",
		RuntimeVersion: "3.11.0",
		Status:         model.BuildSucceeded,
		CreatedAt:      now,
	}); err != nil {
		return nil, err
	}
	if err := store.CreateDeployment(ctx, model.Deployment{
		ID:                  "debug-deployment",
		Service:             "web",
		ManifestFingerprint: "debug",
		Status:              model.DeploymentLive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}); err != nil {
		return nil, err
	}
	if err := store.LogAction(ctx, "DEPLOY_LIVE", "debug-deployment"); err != nil {
		return nil, err
	}
	return store.ExportData(ctx)
}

func summarize(w io.Writer, data *model.ExportData) {
	_, _ = fmt.Fprintf(w, "schema version: %d\n", data.SchemaVersion)
	_, _ = fmt.Fprintf(w, "builds: %d\n", len(data.Builds))
	for _, b := range data.Builds {
		_, _ = fmt.Fprintf(w, "  build %d: %s %s python %s\n", b.ID, b.Service, b.Status, b.RuntimeVersion)
	}
	_, _ = fmt.Fprintf(w, "deployments: %d\n", len(data.Deployments))
	for _, d := range data.Deployments {
		_, _ = fmt.Fprintf(w, "  deployment %s: %s %s\n", d.ID, d.Service, d.Status)
	}
	_, _ = fmt.Fprintf(w, "audit entries: %d\n", len(data.AuditLogEntries))
}
