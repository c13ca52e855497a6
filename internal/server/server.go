// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package server is the web service a start command launches.
//
// It exposes the liveness route the platform probes and enforces the start
// command's topology: a worker pool admits at most workers*threads requests,
// every request is cut off after the timeout, access lines go to the access
// stream and failures to the error stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzhttp"
	"github.com/toeirei/launchpad/internal/envvars"
	"github.com/toeirei/launchpad/internal/logging"
	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/topology"
	"github.com/toeirei/launchpad/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Options configures a Server beyond its topology.
type Options struct {
	// HealthPath is the liveness route, "/" when empty.
	HealthPath string
	Version    string
	// App serves every path other than the liveness route. Nil answers 404.
	App http.Handler

	// Access and Error override the topology's log targets.
	Access io.Writer
	Error  io.Writer

	// Required lists variables that must be set in Env before the server
	// starts; Env defaults to the process environment.
	Required []string
	Env      envvars.Source

	// OnListen is called with the bound address once the listener is open.
	OnListen func(net.Addr)
	Now      func() time.Time
}

// Server is a configured, not yet running service.
type Server struct {
	top     model.Topology
	opts    Options
	pool    *worker.Pool
	access  *clog.Logger
	errlog  *clog.Logger
	closers []io.Closer
	started time.Time
	handler http.Handler
}

// New validates the topology and required environment and builds the
// handler chain. A missing required variable is an error here, before any
// port is bound.
func New(top model.Topology, opts Options) (*Server, error) {
	if err := topology.Validate(top); err != nil {
		return nil, err
	}
	env := opts.Env
	if env == nil {
		env = envvars.Process{}
	}
	if err := envvars.Require(env, opts.Required...); err != nil {
		return nil, err
	}
	if opts.HealthPath == "" {
		opts.HealthPath = "/"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{top: top, opts: opts}

	accessW, errW := opts.Access, opts.Error
	if accessW == nil {
		w, err := logging.OpenTarget(top.AccessLog, os.Stdout)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, w)
		accessW = w
	}
	if errW == nil {
		w, err := logging.OpenTarget(top.ErrorLog, os.Stderr)
		if err != nil {
			s.closeLogs()
			return nil, err
		}
		s.closers = append(s.closers, w)
		errW = w
	}
	s.access = clog.NewWithOptions(accessW, clog.Options{ReportTimestamp: true, Prefix: "access"})
	s.errlog = logging.New(errW, top.LogLevel, "")

	pool, err := worker.New(top.Workers, top.Threads)
	if err != nil {
		s.closeLogs()
		return nil, err
	}
	pool.OnRestart = func(id, gen int, cause any) {
		s.errlog.Warn("worker restarted", "worker", id, "generation", gen, "cause", fmt.Sprint(cause))
	}
	s.pool = pool
	s.started = opts.Now()
	s.handler = s.chain()
	return s, nil
}

// Handler is the full middleware chain, useful for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Pool exposes the worker pool.
func (s *Server) Pool() *worker.Pool { return s.pool }

func (s *Server) chain() http.Handler {
	admitted := s.admit(http.HandlerFunc(s.route))
	timed := http.TimeoutHandler(admitted, s.top.Timeout, "request timed out\n")
	return s.logAccess(gzhttp.GzipHandler(timed))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == s.opts.HealthPath {
		s.health(w, r)
		return
	}
	if s.opts.App != nil {
		s.opts.App.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// Run listens on the topology's bind address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.top.Bind)
	if err != nil {
		s.closeLogs()
		return fmt.Errorf("listen on %s: %w", s.top.Bind, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then drains in-flight requests for at
// most one request timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.closeLogs()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.errlog.StandardLog(clog.StandardLogOptions{ForceLevel: clog.ErrorLevel}),
	}
	s.errlog.Info("listening", "addr", ln.Addr().String(), "workers", s.top.Workers, "threads", s.top.Threads, "timeout", s.top.Timeout)
	if s.opts.OnListen != nil {
		s.opts.OnListen(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.pool.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.top.Timeout)
		defer cancel()
		s.errlog.Info("shutting down", "in_flight", s.pool.InFlight())
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) closeLogs() {
	for _, c := range s.closers {
		_ = c.Close()
	}
	s.closers = nil
}
