// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers should use the helper functions
// below for compatibility with existing calls.
var L = clog.NewWithOptions(os.Stderr, clog.Options{ReportTimestamp: true})

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Error(fmt.Sprintf(format, v...))
}

// ParseLevel maps config and gunicorn-style level names onto log levels.
// Unknown names fall back to info.
func ParseLevel(name string) clog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return clog.DebugLevel
	case "warn", "warning":
		return clog.WarnLevel
	case "error":
		return clog.ErrorLevel
	case "critical", "fatal":
		return clog.FatalLevel
	default:
		return clog.InfoLevel
	}
}

// SetLevel changes the level of the package logger.
func SetLevel(name string) {
	L.SetLevel(ParseLevel(name))
}

// New returns a logger writing to w with the given level and prefix.
func New(w io.Writer, level, prefix string) *clog.Logger {
	l := clog.NewWithOptions(w, clog.Options{ReportTimestamp: true, Prefix: prefix})
	l.SetLevel(ParseLevel(level))
	return l
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// OpenTarget resolves a log target the way start commands spell it: "-" is
// the given std stream, "" disables the stream and anything else is a file
// opened for appending.
func OpenTarget(target string, std io.Writer) (io.WriteCloser, error) {
	switch target {
	case "-":
		return nopCloser{std}, nil
	case "":
		return nopCloser{io.Discard}, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log target %s: %w", target, err)
	}
	return f, nil
}
