// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the root command, configuration loading and the shared
// services every subcommand relies on.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/launchpad/buildvars"
	"github.com/toeirei/launchpad/internal/config"
	"github.com/toeirei/launchpad/internal/db"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/logging"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

// app carries the state shared by the commands of one invocation.
type app struct {
	cfg     config.Config
	verbose bool
	store   db.Store

	// openStore is replaced in tests.
	openStore func(dbType, dsn string) (db.Store, error)
}

func newApp() *app {
	return &app{openStore: db.New}
}

// Store opens the configured database on first use.
func (a *app) Store() (db.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := a.openStore(a.cfg.Database.Type, a.cfg.Database.Dsn)
	if err != nil {
		return nil, errors.New(i18n.T("config.error_init_db", err))
	}
	a.store = s
	return s, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warnf("closing database: %v", err)
		}
		a.store = nil
	}
}

func (a *app) setupDefaultServices(cmd *cobra.Command, _ []string) error {
	// Load optional config file argument from cli
	optionalConfigPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	defaults := config.Defaults()
	a.cfg, err = config.LoadConfig[config.Config](cmd, defaults, optionalConfigPath)
	// A "file not found" error is expected on first run.
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		if path, writeErr := config.WriteConfigFile(&a.cfg, false); writeErr != nil {
			// The app can run on defaults.
			logging.Warnf("could not write default config file: %v", writeErr)
		} else {
			logging.Debugf("wrote default config to %s", path)
		}
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Empty values in a user's file fall back to the defaults.
	if a.cfg.Database.Type == "" {
		a.cfg.Database.Type = defaults["database.type"].(string)
	}
	if a.cfg.Database.Dsn == "" {
		a.cfg.Database.Dsn = defaults["database.dsn"].(string)
	}
	if a.cfg.Language == "" {
		a.cfg.Language = defaults["language"].(string)
	}

	level := a.cfg.LogLevel
	if a.verbose {
		level = "debug"
		db.SetDebug(true)
	}
	logging.SetLevel(level)

	i18n.Init(a.cfg.Language)
	if got := i18n.GetLang(); !strings.HasPrefix(strings.ToLower(a.cfg.Language), got) {
		logging.Warnf("language %q is not available (have %s), using %s", a.cfg.Language, strings.Join(i18n.Locales(), ", "), got)
	}
	return nil
}

func applyDefaultFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("database.type", "sqlite", "Database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database.dsn", "./launchpad.db", "Database connection string (DSN)")
	cmd.PersistentFlags().String("language", "en", `CLI language ("en", "de")`)
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if cmd.Flags().Changed("config") {
		path, err := cmd.Flags().GetString("config")
		if err != nil {
			return nil, fmt.Errorf("could not read --config flag: %w", err)
		}
		if path == "" {
			return nil, nil
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		return &path, nil
	}
	return nil, nil
}

// Execute runs the CLI until it finishes or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a := newApp()
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}

// NewRootCmd builds a fresh command tree. The database the commands open
// stays open until the process exits.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launchpad",
		Short: "Launchpad builds, launches and health-checks web services.",
		Long: `Launchpad reads a deployment descriptor (render.yaml) and a pinned
dependency manifest (requirements.txt), resolves every dependency against the
package index for the pinned runtime, launches the service with the start
command's worker topology and marks the deployment live once the liveness
check answers. Deployments, builds and audit entries are kept in a database.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setupDefaultServices,
	}
	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging (includes database statements)")
	cmd.PersistentFlags().String("config", "", "config file")
	applyDefaultFlags(cmd)

	cmd.AddCommand(
		newValidateCmd(a),
		newBuildCmd(a),
		newServeCmd(a),
		newDeployCmd(a),
		newProbeCmd(a),
		newHistoryCmd(a),
		newAuditCmd(a),
		newExportCmd(a),
		newMaintenanceCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out = out + " (" + c + ")"
	}
	if d != "" {
		out = out + " built: " + d
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		// Printing the version needs no config or database.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "version: %s\n", v)
			_, _ = fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				_, _ = fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}

func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	var ok bool
	if info == nil {
		if infoLocal, found := debug.ReadBuildInfo(); found {
			info = infoLocal
			ok = true
		}
	} else {
		ok = true
	}

	if ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		if (resolvedVersion == "dev" || resolvedVersion == "(devel)") && info.Deps != nil {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/launchpad" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}

		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}

	return resolvedVersion, resolvedCommit, resolvedDate
}
