// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/toeirei/launchpad/internal/worker"
)

type (
	leaseKey    struct{}
	recorderKey struct{}
)

// WorkerFromContext returns the worker id serving the request, 0 if none.
func WorkerFromContext(ctx context.Context) int {
	if l, ok := ctx.Value(leaseKey{}).(*worker.Lease); ok {
		return l.Worker()
	}
	return 0
}

// statusRecorder captures what the access log needs.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	worker atomic.Int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.opts.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), recorderKey{}, rec)))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.access.Info(fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), r.Proto),
			"remote", r.RemoteAddr,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", s.opts.Now().Sub(start).Round(time.Microsecond),
			"worker", rec.worker.Load(),
		)
	})
}

// admit holds a worker slot until next returns, even when the request has
// already been answered by the timeout. It runs under the request deadline,
// so waiting for a slot counts against the same timeout as the work itself.
// A panic below crashes the worker.
func (s *Server) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lease, err := s.pool.Acquire(r.Context())
		if err != nil {
			s.errlog.Warn("request not admitted", "path", r.URL.Path, "err", err)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "server busy", http.StatusServiceUnavailable)
			return
		}
		if rec, ok := r.Context().Value(recorderKey{}).(*statusRecorder); ok {
			rec.worker.Store(int64(lease.Worker()))
		}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					lease.Release()
					panic(p)
				}
				s.errlog.Error("handler panic", "path", r.URL.Path, "worker", lease.Worker(), "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
				lease.Crash(p)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			lease.Release()
		}()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), leaseKey{}, lease)))
	})
}

type healthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Uptime   string         `json:"uptime"`
	Workers  int            `json:"workers"`
	Threads  int            `json:"threads"`
	InFlight int            `json:"in_flight"`
	Pool     []worker.Stats `json:"pool"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	body := healthResponse{
		Status:   "ok",
		Version:  s.opts.Version,
		Uptime:   s.opts.Now().Sub(s.started).Round(time.Second).String(),
		Workers:  s.top.Workers,
		Threads:  s.top.Threads,
		InFlight: s.pool.InFlight(),
		Pool:     s.pool.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
