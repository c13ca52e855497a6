// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package envvars materialises a service's environment declarations.
//
// Literal values are copied, generated values are freshly created on every
// resolution and external values are looked up in out-of-band sources (the
// process environment, a dotenv file, an interactive prompt). Resolution
// fails fast when any external value is missing.
package envvars

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/toeirei/launchpad/internal/model"
	"github.com/toeirei/launchpad/internal/security"
)

// ErrMissingValue is returned when a required variable has no value.
var ErrMissingValue = errors.New("required environment variable not set")

// MissingError names every variable that could not be resolved.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingValue, strings.Join(e.Keys, ", "))
}

func (e *MissingError) Is(target error) bool { return target == ErrMissingValue }

// Value is one resolved variable.
type Value struct {
	Key    string
	Source model.EnvSource
	Secret security.Secret
}

// Env is the resolved environment of a single deployment.
type Env struct {
	values []Value
}

// Environ renders KEY=value pairs for a child process.
func (e *Env) Environ() []string {
	out := make([]string, 0, len(e.values))
	for _, v := range e.values {
		out = append(out, v.Key+"="+v.Secret.Reveal())
	}
	return out
}

// Map returns the plain values keyed by name.
func (e *Env) Map() map[string]string {
	out := make(map[string]string, len(e.values))
	for _, v := range e.values {
		out[v.Key] = v.Secret.Reveal()
	}
	return out
}

// Fingerprints digests every non-literal value for the deployment record.
func (e *Env) Fingerprints() map[string]string {
	out := make(map[string]string)
	for _, v := range e.values {
		if v.Source == model.EnvLiteral {
			continue
		}
		out[v.Key] = v.Secret.Fingerprint()
	}
	return out
}

// Zero wipes every value.
func (e *Env) Zero() {
	for i := range e.values {
		e.values[i].Secret.Zero()
	}
}

// Resolver resolves declarations against out-of-band sources.
type Resolver struct {
	Sources Source
	// Generate creates generated values; security.Generate when nil.
	Generate func() (security.Secret, error)
}

// Resolve resolves decls. Generated values are new on every call.
func (r Resolver) Resolve(decls []model.EnvVarDecl) (*Env, error) {
	gen := r.Generate
	if gen == nil {
		gen = security.Generate
	}
	src := r.Sources
	if src == nil {
		src = Chain{}
	}

	env := &Env{}
	var missing []string
	for _, d := range decls {
		v := Value{Key: d.Key, Source: d.Source()}
		switch v.Source {
		case model.EnvLiteral:
			v.Secret = security.FromString(d.Value)
		case model.EnvGenerated:
			s, err := gen()
			if err != nil {
				env.Zero()
				return nil, fmt.Errorf("generate %s: %w", d.Key, err)
			}
			v.Secret = s
		case model.EnvExternal:
			val, ok, err := src.Lookup(d.Key)
			if err != nil {
				env.Zero()
				return nil, fmt.Errorf("lookup %s: %w", d.Key, err)
			}
			if !ok || val == "" {
				missing = append(missing, d.Key)
				continue
			}
			v.Secret = security.FromString(val)
		}
		env.values = append(env.values, v)
	}
	if len(missing) > 0 {
		env.Zero()
		sort.Strings(missing)
		return nil, &MissingError{Keys: missing}
	}
	return env, nil
}

// Require checks that every key resolves to a non-empty value. The service
// calls it on start so a missing provider key stops the process instead of
// surfacing later as failing requests.
func Require(src Source, keys ...string) error {
	var missing []string
	for _, k := range keys {
		v, ok, err := src.Lookup(k)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", k, err)
		}
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingError{Keys: missing}
	}
	return nil
}
