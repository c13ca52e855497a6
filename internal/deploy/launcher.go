// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/toeirei/launchpad/internal/envvars"
	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/server"
)

// LaunchSpec is everything a launcher needs to start one service instance.
type LaunchSpec struct {
	Service  model.Service
	Topology model.Topology
	Env      *envvars.Env
	Port     int
	Version  string
}

// Instance is a started service.
type Instance interface {
	// URL is the base address the instance answers on, without a path.
	URL() string
	// Stop asks the instance to shut down and waits until it has.
	Stop(ctx context.Context) error
	// Done is closed once the instance has exited.
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed.
	Err() error
}

// Launcher starts service instances.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Instance, error)
}

// FreePort asks the kernel for an unused loopback TCP port.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// baseURL turns a bind address into a URL reachable from this host.
func baseURL(bind string) (string, error) {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("bind address %q: %w", bind, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// instance tracks a running service; done is closed after err is set.
type instance struct {
	url  string
	done chan struct{}
	stop func()

	mu  sync.Mutex
	err error
}

func newInstance(url string, stop func()) *instance {
	return &instance{url: url, stop: stop, done: make(chan struct{})}
}

func (i *instance) URL() string           { return i.url }
func (i *instance) Done() <-chan struct{} { return i.done }

func (i *instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

func (i *instance) exit(err error) {
	i.mu.Lock()
	i.err = err
	i.mu.Unlock()
	close(i.done)
}

func (i *instance) Stop(ctx context.Context) error {
	i.stop()
	select {
	case <-i.done:
		return i.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InProcessLauncher runs the service inside the current process.
type InProcessLauncher struct {
	// App serves paths other than the liveness route.
	App http.Handler
	// Access and Error override the topology's log targets.
	Access io.Writer
	Error  io.Writer
}

// Launch binds the topology's address and serves in the background. The
// instance keeps running after ctx ends; use Stop to end it.
func (l InProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) (Instance, error) {
	if spec.Env == nil {
		spec.Env = &envvars.Env{}
	}
	var required []string
	for _, ev := range spec.Service.EnvVars {
		if ev.Source() != model.EnvLiteral {
			required = append(required, ev.Key)
		}
	}
	env := spec.Env.Map()
	env["PORT"] = strconv.Itoa(spec.Port)

	srv, err := server.New(spec.Topology, server.Options{
		HealthPath: spec.Service.HealthCheckPath,
		Version:    spec.Version,
		App:        l.App,
		Access:     l.Access,
		Error:      l.Error,
		Required:   required,
		Env:        envvars.Map(env),
	})
	if err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", spec.Topology.Bind)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", spec.Topology.Bind, err)
	}
	url, err := baseURL(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	inst := newInstance(url, cancel)
	go func() {
		inst.exit(srv.Serve(runCtx, ln))
		cancel()
	}()
	return inst, nil
}

// ExecLauncher runs the service's start command through a shell.
type ExecLauncher struct {
	Shell  string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	// WaitDelay bounds how long Stop waits after the interrupt before the
	// process is killed. Zero uses the request timeout of the topology.
	WaitDelay time.Duration
}

// Launch starts the start command with the resolved environment plus PORT.
func (l ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Instance, error) {
	if spec.Service.StartCommand == "" {
		return nil, errors.New("service has no start command")
	}
	url, err := baseURL(spec.Topology.Bind)
	if err != nil {
		return nil, err
	}
	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, shell, "-c", spec.Service.StartCommand)
	cmd.Dir = l.Dir
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(spec.Port))
	if spec.Env != nil {
		cmd.Env = append(cmd.Env, spec.Env.Environ()...)
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = spec.Topology.Timeout
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %q: %w", spec.Service.StartCommand, err)
	}
	inst := newInstance(url, cancel)
	go func() {
		err := cmd.Wait()
		if runCtx.Err() != nil {
			// Stopped on request; the signal exit status is expected.
			err = nil
		}
		inst.exit(err)
		cancel()
	}()
	return inst, nil
}
