// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/launchpad/internal/deploy"
	"github.com/toeirei/launchpad/internal/descriptor"
	"github.com/toeirei/launchpad/internal/envvars"
	"github.com/toeirei/launchpad/internal/health"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/manifest"
	"github.com/toeirei/launchpad/internal/tui"
	"golang.org/x/term"
)

// isTerminal is replaced in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// heldWriter buffers output until release, then writes through. It keeps
// service logs from tearing the progress display.
type heldWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	dest io.Writer
}

func (h *heldWriter) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dest != nil {
		return h.dest.Write(p)
	}
	return h.buf.Write(p)
}

func (h *heldWriter) release(dest io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, _ = h.buf.WriteTo(dest)
	h.dest = dest
}

// promptMissing asks for every key chain cannot resolve and returns chain
// extended by the answers.
func promptMissing(chain envvars.Chain, keys []string) (envvars.Chain, error) {
	prompt := envvars.NewPrompt()
	answers := envvars.Map{}
	for _, k := range keys {
		v, ok, err := chain.Lookup(k)
		if err != nil {
			return nil, err
		}
		if ok && v != "" {
			continue
		}
		if v, ok, err = prompt.Lookup(k); err != nil {
			return nil, err
		} else if ok {
			answers[k] = v
		}
	}
	return append(chain, answers), nil
}

func printChanges(w io.Writer, c manifest.Changes) {
	if c.Empty() {
		return
	}
	_, _ = fmt.Fprintln(w, i18n.T("deploy.cli_changes"))
	for _, d := range c.Added {
		_, _ = fmt.Fprintf(w, "  + %s\n", d.String())
	}
	for _, d := range c.Removed {
		_, _ = fmt.Fprintf(w, "  - %s\n", d.String())
	}
	for _, ch := range c.Changed {
		_, _ = fmt.Fprintf(w, "  ~ %s %s -> %s\n", ch.Name, ch.From, ch.To)
	}
}

func newDeployCmd(a *app) *cobra.Command {
	var (
		port                   int
		force, offline         bool
		useExec, once, noInput bool
		plain                  bool
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, launch and health-check the service",
		Long: `Runs a full deployment: resolves the environment (generated values are
new on every deploy, values marked sync: false come from the environment, the
dotenv file or a prompt), builds the manifest, launches the start command and
waits for the liveness check. The service keeps running in the foreground
until interrupted, or stops right after going live with --once.`,
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
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			interactive := !plain && isTerminal(out)

			sources, err := a.envSources(!noInput && !interactive)
			if err != nil {
				return err
			}
			if interactive && !noInput {
				// Prompting is not possible once the progress display owns the terminal.
				if sources, err = promptMissing(sources, descriptor.ExternalKeys(in.service)); err != nil {
					return err
				}
			}

			// While the progress display runs, build and service output is held back.
			held := &heldWriter{}
			var svcOut, svcErr io.Writer = out, errOut
			if interactive {
				svcOut, svcErr = held, held
			}
			builder := a.newBuilder(svcOut, svcErr)
			builder.Store = store

			var launcher deploy.Launcher = deploy.InProcessLauncher{Access: svcOut, Error: svcErr}
			if useExec {
				launcher = deploy.ExecLauncher{Stdout: svcOut, Stderr: svcErr}
			}

			d := &deploy.Deployer{
				Store:        store,
				Builder:      builder,
				Launcher:     launcher,
				Prober:       health.Prober{Timeout: 5 * time.Second},
				Sources:      sources,
				PollInterval: 500 * time.Millisecond,
			}
			req := deploy.Request{
				Descriptor:  in.descriptor,
				ServiceName: in.service.Name,
				Manifest:    in.manifest,
				Port:        port,
				ForceBuild:  force,
				Offline:     offline,
				Version:     compositeVersion(),
			}
			run := func(ctx context.Context, obs deploy.Observer) (*deploy.Result, error) {
				d.Observer = obs
				return d.Deploy(ctx, req)
			}

			var res *deploy.Result
			if interactive {
				res, err = tui.RunDeploy(cmd.Context(), cmd.InOrStdin(), out, in.service.Name, run)
			} else {
				res, err = tui.RunPlain(cmd.Context(), run)
			}
			held.release(errOut)
			if res != nil {
				printChanges(out, res.Changes)
			}
			if err != nil {
				printBuildFailures(errOut, err)
				return err
			}

			_, _ = fmt.Fprintln(out, i18n.T("deploy.cli_live", res.Deployment.ID, res.Instance.URL()))
			if !once {
				select {
				case <-cmd.Context().Done():
				case <-res.Instance.Done():
					if exitErr := res.Instance.Err(); exitErr != nil {
						return fmt.Errorf("%s: %w", i18n.T("deploy.cli_exited"), exitErr)
					}
					return nil
				}
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_, _ = fmt.Fprintln(out, i18n.T("deploy.cli_stopping"))
			return res.Instance.Stop(stopCtx)
		},
	}
	addServiceFlags(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port assigned to the service (0 picks a free one)")
	cmd.Flags().BoolVar(&force, "force-build", false, "Build even if an identical build succeeded before")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip package index resolution")
	cmd.Flags().BoolVar(&useExec, "exec", false, "Run the start command as a child process instead of in-process")
	cmd.Flags().BoolVar(&once, "once", false, "Stop the service as soon as it is live")
	cmd.Flags().BoolVar(&noInput, "no-input", false, "Never prompt for missing values")
	cmd.Flags().BoolVar(&plain, "plain", false, "Log progress instead of showing the progress display")
	return cmd
}

func newProbeCmd(_ *app) *cobra.Command {
	var (
		timeout time.Duration
		wait    time.Duration
		port    int
	)
	cmd := &cobra.Command{
		Use:   "probe [url]",
		Short: "Run the liveness check against a service",
		Long: `Requests the liveness route once and succeeds on any 2xx answer. With
--wait the check is repeated until it succeeds or the wait elapses. Without a
URL, http://127.0.0.1:$PORT/ is probed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "http://127.0.0.1:" + strconv.Itoa(port) + "/"
			if len(args) == 1 {
				url = args[0]
			}
			p := health.Prober{Timeout: timeout}
			var err error
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				err = p.WaitHealthy(ctx, url, 500*time.Millisecond)
			} else {
				err = p.Probe(cmd.Context(), url)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), i18n.T("probe.cli_healthy", url))
			return nil
		},
	}
	defPort := defaultPort
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		defPort = v
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout of a single probe")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep probing for up to this long")
	cmd.Flags().IntVarP(&port, "port", "p", defPort, "Port probed when no URL is given")
	return cmd
}
