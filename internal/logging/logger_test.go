package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
)

// TestLoggingHelpers_WriteToBuffer verifies the package helper functions write
// formatted messages to the package-level logger `L`. The test swaps `L` with
// a buffer-backed logger and restores it afterwards.
func TestLoggingHelpers_WriteToBuffer(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)
	defer func() { L = prev }()

	Debugf("hello %s", "dbg")
	Infof("info %d", 1)
	Warnf("warn")
	Errorf("err %v", "E")

	out := buf.String()
	if !strings.Contains(out, "hello dbg") {
		t.Fatalf("missing debug output; got: %s", out)
	}
	if !strings.Contains(out, "info 1") {
		t.Fatalf("missing info output; got: %s", out)
	}
	if !strings.Contains(out, "warn") {
		t.Fatalf("missing warn output; got: %s", out)
	}
	if !strings.Contains(out, "err E") {
		t.Fatalf("missing error output; got: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]clog.Level{
		"debug":    clog.DebugLevel,
		"INFO":     clog.InfoLevel,
		"warning":  clog.WarnLevel,
		"warn":     clog.WarnLevel,
		"error":    clog.ErrorLevel,
		"critical": clog.FatalLevel,
		"bogus":    clog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_RespectsLevelAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warning", "access")
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warning level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "access") {
		t.Fatalf("expected prefixed warning, got: %s", out)
	}
}

func TestOpenTarget(t *testing.T) {
	var std bytes.Buffer
	w, err := OpenTarget("-", &std)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("to std"))
	_ = w.Close()
	if std.String() != "to std" {
		t.Fatalf("expected write to std stream, got %q", std.String())
	}

	off, err := OpenTarget("", &std)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = off.Write([]byte("dropped"))
	if strings.Contains(std.String(), "dropped") {
		t.Fatal("empty target must discard")
	}

	path := filepath.Join(t.TempDir(), "access.log")
	f, err := OpenTarget(path, &std)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte("line\n"))
	_ = f.Close()
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "line\n" {
		t.Fatalf("expected file contents, got %q (%v)", data, err)
	}

	if _, err := OpenTarget(filepath.Join(t.TempDir(), "missing", "x.log"), &std); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
