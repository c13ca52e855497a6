// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package topology turns a start command into the process layout it asks for.
//
// The flags follow the gunicorn conventions the descriptors were written
// for (`--workers`, `--threads`, `--timeout`, `--bind`, `--access-logfile`,
// `--error-logfile`), so the same start command works for a Python app
// server and for `launchpad serve`.
package topology

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
	"github.com/toeirei/launchpad/internal/model"
)

const (
	DefaultWorkers = 1
	DefaultThreads = 1
	DefaultTimeout = 30 * time.Second
	DefaultBind    = "127.0.0.1:8000"

	// StdStream is the log target meaning stdout (access) or stderr (errors).
	StdStream = "-"
)

// ErrInvalid wraps every start command problem.
var ErrInvalid = errors.New("invalid start command")

// Flags holds the raw flag values bound to a FlagSet.
type Flags struct {
	Workers   int
	Threads   int
	Timeout   int
	Bind      string
	AccessLog string
	ErrorLog  string
	LogLevel  string
}

// Register defines the topology flags on fs. It is shared by the start
// command parser and the `serve` command so both accept the same syntax.
func Register(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.IntVarP(&f.Workers, "workers", "w", DefaultWorkers, "Number of worker units")
	fs.IntVar(&f.Threads, "threads", DefaultThreads, "Request-handling threads per worker")
	fs.IntVarP(&f.Timeout, "timeout", "t", int(DefaultTimeout/time.Second), "Request timeout in seconds")
	fs.StringVarP(&f.Bind, "bind", "b", DefaultBind, "Address to listen on (host:port)")
	fs.StringVar(&f.AccessLog, "access-logfile", "", `Access log target ("-" for stdout, empty to disable)`)
	fs.StringVar(&f.ErrorLog, "error-logfile", StdStream, `Error log target ("-" for stderr)`)
	fs.StringVar(&f.LogLevel, "log-level", "info", "Log level (debug, info, warning, error)")
	return f
}

// Topology validates the flag values and converts them.
func (f *Flags) Topology() (model.Topology, error) {
	t := model.Topology{
		Workers:   f.Workers,
		Threads:   f.Threads,
		Timeout:   time.Duration(f.Timeout) * time.Second,
		Bind:      f.Bind,
		AccessLog: f.AccessLog,
		ErrorLog:  f.ErrorLog,
		LogLevel:  f.LogLevel,
	}
	return t, Validate(t)
}

// Validate checks a topology for values no server can run with.
func Validate(t model.Topology) error {
	var errs []error
	if t.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, t.Workers))
	}
	if t.Threads < 1 {
		errs = append(errs, fmt.Errorf("%w: threads must be at least 1, got %d", ErrInvalid, t.Threads))
	}
	if t.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalid, t.Timeout))
	}
	if strings.HasPrefix(t.Bind, "unix:") {
		errs = append(errs, fmt.Errorf("%w: unix socket binds are not supported", ErrInvalid))
	} else if _, port, err := net.SplitHostPort(t.Bind); err != nil {
		errs = append(errs, fmt.Errorf("%w: bind %q: %v", ErrInvalid, t.Bind, err))
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("%w: bind %q: bad port", ErrInvalid, t.Bind))
	}
	return errors.Join(errs...)
}

// LookupFunc resolves variables referenced by a start command.
type LookupFunc func(key string) (string, bool)

// MapLookup resolves variables from m first and the process environment second.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := m[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}
}

// Expand substitutes $VAR and ${VAR} in cmd. Every referenced variable must
// resolve; an unset PORT would otherwise produce a bind address without a port.
func Expand(cmd string, lookup LookupFunc) (string, error) {
	missing := map[string]bool{}
	out := os.Expand(cmd, func(key string) string {
		v, ok := lookup(key)
		if !ok {
			missing[key] = true
		}
		return v
	})
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: unset variables: %s", ErrInvalid, strings.Join(keys, ", "))
	}
	return out, nil
}

// ParseStartCommand expands and parses a start command. Flags the parser does
// not know are ignored, the first positional argument after the program (and
// after a `serve` subcommand) is taken as the application entry point.
// WEB_CONCURRENCY provides the worker count when --workers is absent.
func ParseStartCommand(cmd string, lookup LookupFunc) (model.Topology, error) {
	expanded, err := Expand(cmd, lookup)
	if err != nil {
		return model.Topology{}, err
	}
	args, err := shlex.Split(expanded)
	if err != nil {
		return model.Topology{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(args) == 0 {
		return model.Topology{}, fmt.Errorf("%w: empty command", ErrInvalid)
	}

	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	flags := Register(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return model.Topology{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !fs.Changed("workers") {
		if v, ok := lookup("WEB_CONCURRENCY"); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return model.Topology{}, fmt.Errorf("%w: WEB_CONCURRENCY=%q", ErrInvalid, v)
			}
			flags.Workers = n
		}
	}

	t, err := flags.Topology()
	if err != nil {
		return t, err
	}
	rest := fs.Args()
	if len(rest) > 0 && rest[0] == "serve" {
		rest = rest[1:]
	}
	if len(rest) > 0 {
		t.App = rest[0]
	}
	return t, nil
}
