// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/toeirei/launchpad/internal/build"
	"github.com/toeirei/launchpad/internal/descriptor"
	"github.com/toeirei/launchpad/internal/envvars"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/index"
	"github.com/toeirei/launchpad/internal/logging"
	"github.com/toeirei/launchpad/internal/manifest"
	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/server"
	"github.com/toeirei/launchpad/internal/topology"
	"github.com/toeirei/launchpad/internal/tui"
)

// defaultPort stands in for the platform-assigned port when nothing else
// provides one.
const defaultPort = 10000

// inputs is a loaded descriptor, the selected service and its manifest.
type inputs struct {
	descriptor *descriptor.Descriptor
	service    model.Service
	manifest   *model.Manifest
}

func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("descriptor", "f", "", "Deployment descriptor (default from config: service.descriptor)")
	cmd.Flags().StringP("manifest", "r", "", "Dependency manifest (default from config: service.manifest)")
	cmd.Flags().StringP("service", "s", "", "Service name, may be empty for single-service descriptors")
}

// flagOr returns the flag value when it was set and def otherwise.
func flagOr(cmd *cobra.Command, name, def string) string {
	if cmd.Flags().Changed(name) {
		if v, err := cmd.Flags().GetString(name); err == nil {
			return v
		}
	}
	return def
}

func (a *app) loadInputs(cmd *cobra.Command, withManifest bool) (*inputs, error) {
	d, err := descriptor.Load(flagOr(cmd, "descriptor", a.cfg.Service.Descriptor))
	if err != nil {
		return nil, err
	}
	svc, err := d.Service(flagOr(cmd, "service", a.cfg.Service.Name))
	if err != nil {
		return nil, err
	}
	in := &inputs{descriptor: d, service: svc}
	if withManifest {
		if in.manifest, err = manifest.ParseFile(flagOr(cmd, "manifest", a.cfg.Service.Manifest)); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// envSources is the chain external values are looked up in: the process
// environment first, then the dotenv file, then an optional prompt.
func (a *app) envSources(prompt bool) (envvars.Chain, error) {
	chain := envvars.Chain{envvars.Process{}}
	if a.cfg.Service.EnvFile != "" {
		src, err := envvars.Dotenv(a.cfg.Service.EnvFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, src)
	}
	if prompt {
		chain = append(chain, envvars.NewPrompt())
	}
	return chain, nil
}

func (a *app) newBuilder(stdout, stderr io.Writer) *build.Builder {
	return &build.Builder{
		Resolver:  index.NewClient(a.cfg.Index.URL),
		Installer: build.ShellInstaller{Stdout: stdout, Stderr: stderr},
	}
}

func printBuildFailures(w io.Writer, err error) {
	var berr *build.Error
	if !errors.As(err, &berr) {
		return
	}
	for _, f := range berr.Failures {
		_, _ = fmt.Fprintln(w, i18n.T("build.cli_failure", f.Error()))
	}
}

func newValidateCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the descriptor, manifest and start command",
		Long: `Parses the deployment descriptor and the dependency manifest, checks that
every dependency is pinned and that the start command yields a usable worker
topology, and prints a summary. Nothing is built or stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := a.loadInputs(cmd, true)
			if err != nil {
				return err
			}
			lookup := topology.MapLookup(map[string]string{"PORT": strconv.Itoa(port)})
			top, err := topology.ParseStartCommand(in.service.StartCommand, lookup)
			if err != nil {
				return err
			}
			if descriptor.RuntimeVersion(in.service) == "" {
				logging.Warnf("%s", i18n.T("validate.cli_no_runtime", in.service.Name))
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprint(out, tui.ServiceSummary(in.service, top, in.manifest))
			_, _ = fmt.Fprintln(out, i18n.T("validate.cli_ok", in.service.Name, len(in.manifest.Dependencies), manifest.Fingerprint(in.manifest)))
			return nil
		},
	}
	addServiceFlags(cmd)
	cmd.Flags().IntVar(&port, "port", defaultPort, "Value of $PORT used to expand the start command")
	return cmd
}

func newBuildCmd(a *app) *cobra.Command {
	var force, offline bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve the manifest and run the build command",
		Long: `Resolves every pinned dependency against the package index for the
service's runtime pin, then runs the service's build command. A build whose
manifest, service and runtime match the last successful build is skipped
unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := a.loadInputs(cmd, true)
			if err != nil {
				return err
			}
			store, err := a.Store()
			if err != nil {
				return err
			}
			b := a.newBuilder(cmd.OutOrStdout(), cmd.ErrOrStderr())
			b.Store = store

			res, err := b.Run(cmd.Context(), build.Request{
				Service:  in.service,
				Manifest: in.manifest,
				Force:    force,
				Offline:  offline,
			})
			out := cmd.OutOrStdout()
			if err != nil {
				printBuildFailures(cmd.ErrOrStderr(), err)
				return err
			}
			if res.Skipped {
				_, _ = fmt.Fprintln(out, i18n.T("build.cli_skipped", res.Build.Fingerprint, res.Build.RuntimeVersion))
				return nil
			}
			_, _ = fmt.Fprintln(out, i18n.T("build.cli_succeeded", in.service.Name, len(in.manifest.Dependencies), res.Build.RuntimeVersion))
			return nil
		},
	}
	addServiceFlags(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Build even if an identical build succeeded before")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip package index resolution")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var healthPath string
	var require []string
	var noDescriptor bool
	var flags *topology.Flags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web service with a worker topology",
		Long: `Runs the service in the foreground. It accepts the same flags as a
gunicorn start command, e.g.

  launchpad serve --workers 2 --threads 2 --timeout 60 --bind 0.0.0.0:$PORT

When --bind is not given and PORT is set, the service listens on 0.0.0.0:$PORT.
Variables the descriptor expects from outside (sync: false) must be set or the
service refuses to start. Without a descriptor the service refuses to start
unless --require or --no-descriptor says what it needs instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			top, err := flags.Topology()
			if err != nil {
				return err
			}
			sources, err := a.envSources(false)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("bind") {
				if port, ok, _ := sources.Lookup("PORT"); ok && port != "" {
					top.Bind = "0.0.0.0:" + port
				}
			}

			required := append([]string(nil), require...)
			if !noDescriptor {
				in, err := a.loadInputs(cmd, false)
				switch {
				case err == nil:
					required = append(required, descriptor.ExternalKeys(in.service)...)
					if !cmd.Flags().Changed("health-path") {
						healthPath = in.service.HealthCheckPath
					}
				case errors.Is(err, fs.ErrNotExist) && len(require) > 0:
					logging.Warnf("no descriptor, requiring only %v: %v", require, err)
				case errors.Is(err, fs.ErrNotExist):
					return fmt.Errorf("%w (pass --require or --no-descriptor to serve without one)", err)
				default:
					return err
				}
			}

			srv, err := server.New(top, server.Options{
				HealthPath: healthPath,
				Version:    compositeVersion(),
				Required:   required,
				Env:        sources,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	flags = topology.Register(cmd.Flags())
	addServiceFlags(cmd)
	cmd.Flags().StringVar(&healthPath, "health-path", descriptor.DefaultHealthCheckPath, "Liveness route")
	cmd.Flags().StringSliceVar(&require, "require", nil, "Additional variables that must be set before starting")
	cmd.Flags().BoolVar(&noDescriptor, "no-descriptor", false, "Serve without reading the descriptor")
	return cmd
}
