// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/toeirei/launchpad/internal/config"
	"github.com/toeirei/launchpad/internal/db"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/tui"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		builds bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [service]",
		Short: "List past deployments (or builds)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := a.cfg.Service.Name
			if len(args) == 1 {
				service = args[0]
			}
			store, err := a.Store()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if builds {
				bs, err := store.ListBuilds(cmd.Context(), service, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, bs)
				}
				if len(bs) == 0 {
					_, _ = fmt.Fprintln(out, i18n.T("history.cli_no_builds"))
					return nil
				}
				_, _ = fmt.Fprintln(out, tui.BuildsTable(bs))
				return nil
			}

			ds, err := store.ListDeployments(cmd.Context(), service, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, ds)
			}
			if len(ds) == 0 {
				_, _ = fmt.Fprintln(out, i18n.T("history.cli_no_deployments"))
				return nil
			}
			_, _ = fmt.Fprintln(out, tui.DeploymentsTable(ds))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries (0 for all)")
	cmd.Flags().BoolVar(&builds, "builds", false, "List builds instead of deployments")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.Store()
			if err != nil {
				return err
			}
			entries, err := store.GetAllAuditLogEntries(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(out, i18n.T("audit.cli_empty"))
				return nil
			}
			_, _ = fmt.Fprintln(out, tui.AuditTable(entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeCompressedExport streams data as zstd-compressed, indented JSON.
func writeCompressedExport(w io.Writer, data *model.ExportData) error {
	zstdWriter, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("could not create zstd writer: %w", err)
	}
	encoder := json.NewEncoder(zstdWriter)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		_ = zstdWriter.Close()
		return fmt.Errorf("could not encode json to zstd writer: %w", err)
	}
	return zstdWriter.Close()
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [output-file]",
		Short: "Export builds, deployments and the audit log as zstd-compressed JSON",
		Long: `Dumps the build records, deployment history and audit log into a single,
Zstandard-compressed JSON file. Secret values are never part of the export; only
their fingerprints are.

If an output file is specified, '.zst' will be appended to the name if it's not already present.
If no output file is specified, a default filename 'launchpad-export-YYYY-MM-DD.json.zst' is used.
Use '-' to write to standard output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var outputFile string
			if len(args) == 0 {
				outputFile = fmt.Sprintf("launchpad-export-%s.json.zst", time.Now().Format("2006-01-02"))
			} else {
				outputFile = args[0]
				if outputFile != "-" && !strings.HasSuffix(outputFile, ".zst") {
					outputFile += ".zst"
				}
			}

			store, err := a.Store()
			if err != nil {
				return err
			}
			data, err := store.ExportData(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s", i18n.T("export.cli_error_export", err))
			}

			if outputFile == "-" {
				return writeCompressedExport(cmd.OutOrStdout(), data)
			}
			outf, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("%s", i18n.T("export.cli_error_write", err))
			}
			if err := writeCompressedExport(outf, data); err != nil {
				_ = outf.Close()
				return fmt.Errorf("%s", i18n.T("export.cli_error_write", err))
			}
			if err := outf.Close(); err != nil {
				return fmt.Errorf("%s", i18n.T("export.cli_error_write", err))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), i18n.T("export.cli_success", outputFile))
			return nil
		},
	}
}

func newMaintenanceCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
		Long:  `Runs engine-specific maintenance tasks (PRAGMA optimize and VACUUM on SQLite, VACUUM ANALYZE on PostgreSQL, OPTIMIZE TABLE on MySQL).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if err := db.RunDBMaintenance(ctx, a.cfg.Database.Type, a.cfg.Database.Dsn); err != nil {
				return fmt.Errorf("%s", i18n.T("maintenance.cli_failed", err))
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), i18n.T("maintenance.cli_success"))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Timeout for maintenance (0 means no timeout)")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var system bool
	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := path
			var err error
			if target == "" {
				if target, err = config.GetConfigPath(system); err != nil {
					return err
				}
			}
			if err := config.WriteConfigFileTo(&a.cfg, target); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.cli_written", target))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "Write the system-wide config instead of the user config")
	initCmd.Flags().StringVarP(&path, "output", "o", "", "Write to this path")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), a.cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
