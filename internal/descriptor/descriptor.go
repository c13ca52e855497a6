// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package descriptor loads and validates deployment descriptors.
//
// A descriptor is a YAML document with a list of services:
//
//	services:
//	  - type: web
//	    name: app
//	    buildCommand: pip install -r requirements.txt
//	    startCommand: launchpad serve --workers 2 --threads 2 --timeout 60 --bind 0.0.0.0:$PORT
//	    healthCheckPath: /
//	    envVars:
//	      - key: OPENAI_API_KEY
//	        sync: false
//	      - key: SECRET_KEY
//	        generateValue: true
//	      - key: PYTHON_VERSION
//	        value: 3.11.0
package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/toeirei/launchpad/internal/model"
	"gopkg.in/yaml.v3"
)

// RuntimeVersionKey is the literal env var that pins the runtime version.
const RuntimeVersionKey = "PYTHON_VERSION"

// DefaultHealthCheckPath is used when a service does not declare one.
const DefaultHealthCheckPath = "/"

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid descriptor")
	// ErrServiceNotFound is returned by Service for unknown names.
	ErrServiceNotFound = errors.New("service not found")

	envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Descriptor is a parsed deployment descriptor.
type Descriptor struct {
	Services []model.Service `yaml:"services"`

	path string
}

// Load reads and validates the descriptor at path.
func Load(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open descriptor: %w", err)
	}
	defer func() { _ = f.Close() }()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.path = path
	return d, nil
}

// Parse decodes and validates a descriptor. Unknown fields are rejected so
// typos such as `healthcheckPath` do not silently fall back to defaults.
func Parse(r io.Reader) (*Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i := range d.Services {
		if d.Services[i].HealthCheckPath == "" {
			d.Services[i].HealthCheckPath = DefaultHealthCheckPath
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Path is the file the descriptor was loaded from, if any.
func (d *Descriptor) Path() string { return d.path }

// Validate checks the structural rules every descriptor must satisfy and
// reports all violations at once.
func (d *Descriptor) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(d.Services) == 0 {
		fail("no services declared")
	}
	names := make(map[string]bool)
	for i, s := range d.Services {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			fail("service %s has no name", label)
		} else if names[s.Name] {
			fail("service %q declared twice", s.Name)
		}
		names[s.Name] = true

		switch s.Type {
		case "web":
			if strings.TrimSpace(s.StartCommand) == "" {
				fail("service %s: web services need a startCommand", label)
			}
		case "worker", "cron":
		case "":
			fail("service %s: missing type", label)
		default:
			fail("service %s: unsupported type %q", label, s.Type)
		}
		if !strings.HasPrefix(s.HealthCheckPath, "/") {
			fail("service %s: healthCheckPath %q must start with /", label, s.HealthCheckPath)
		}

		keys := make(map[string]bool)
		for _, ev := range s.EnvVars {
			if !envKeyPattern.MatchString(ev.Key) {
				fail("service %s: bad env var key %q", label, ev.Key)
				continue
			}
			if keys[ev.Key] {
				fail("service %s: env var %s declared twice", label, ev.Key)
			}
			keys[ev.Key] = true

			sources := 0
			if ev.Value != "" {
				sources++
			}
			if ev.GenerateValue {
				sources++
			}
			if ev.Sync != nil {
				if *ev.Sync {
					fail("service %s: env var %s: sync: true is not supported, declare a value", label, ev.Key)
				}
				sources++
			}
			if sources != 1 {
				fail("service %s: env var %s must declare exactly one of value, generateValue or sync: false", label, ev.Key)
			}
		}
	}
	return errors.Join(errs...)
}

// Service returns the named service. An empty name selects the only service
// of a single-service descriptor.
func (d *Descriptor) Service(name string) (model.Service, error) {
	if name == "" {
		if len(d.Services) == 1 {
			return d.Services[0], nil
		}
		return model.Service{}, fmt.Errorf("%w: descriptor has %d services, pick one by name", ErrServiceNotFound, len(d.Services))
	}
	for _, s := range d.Services {
		if s.Name == name {
			return s, nil
		}
	}
	return model.Service{}, fmt.Errorf("%w: %q", ErrServiceNotFound, name)
}

// RuntimeVersion returns the pinned runtime version of a service, or "" if
// the service does not pin one.
func RuntimeVersion(s model.Service) string {
	for _, ev := range s.EnvVars {
		if ev.Key == RuntimeVersionKey {
			return ev.Value
		}
	}
	return ""
}

// ExternalKeys lists the variables that must be supplied out-of-band.
func ExternalKeys(s model.Service) []string {
	var out []string
	for _, ev := range s.EnvVars {
		if ev.Source() == model.EnvExternal {
			out = append(out, ev.Key)
		}
	}
	return out
}

// Fingerprint digests the canonical re-encoding of the descriptor so
// formatting or comment changes do not count as a new configuration.
func (d *Descriptor) Fingerprint() (string, error) {
	return digest(struct {
		Services []model.Service `yaml:"services"`
	}{d.Services})
}

func digest(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf.Bytes())), nil
}
