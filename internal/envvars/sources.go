// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package envvars

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// Source supplies out-of-band values.
type Source interface {
	Lookup(key string) (string, bool, error)
}

// Chain asks each source in turn; the first non-empty hit wins.
type Chain []Source

func (c Chain) Lookup(key string) (string, bool, error) {
	for _, s := range c {
		v, ok, err := s.Lookup(key)
		if err != nil {
			return "", false, err
		}
		if ok && v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Process reads the current process environment.
type Process struct{}

func (Process) Lookup(key string) (string, bool, error) {
	v, ok := os.LookupEnv(key)
	return v, ok, nil
}

// Map serves fixed values, mostly for tests and in-process launches.
type Map map[string]string

func (m Map) Lookup(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// Dotenv loads a dotenv file once. A missing file is treated as empty so the
// same configuration works with and without a local secrets file.
func Dotenv(path string) (Source, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("read dotenv %s: %w", path, err)
	}
	return Map(vals), nil
}

// Prompt asks for values on an interactive terminal without echoing them.
// On a non-terminal it reports every key as absent.
type Prompt struct {
	Fd  int
	Out io.Writer

	// overridable in tests
	isTerminal func(fd int) bool
	read       func(fd int) ([]byte, error)
}

// NewPrompt prompts on stdin, writing the question to stderr.
func NewPrompt() *Prompt {
	return &Prompt{Fd: int(os.Stdin.Fd()), Out: os.Stderr}
}

func (p *Prompt) Lookup(key string) (string, bool, error) {
	isTerm := p.isTerminal
	if isTerm == nil {
		isTerm = term.IsTerminal
	}
	if !isTerm(p.Fd) {
		return "", false, nil
	}
	read := p.read
	if read == nil {
		read = term.ReadPassword
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	_, _ = fmt.Fprintf(out, "%s: ", key)
	b, err := read(p.Fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	v := strings.TrimSpace(string(b))
	for i := range b {
		b[i] = 0
	}
	return v, v != "", nil
}
