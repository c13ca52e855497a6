// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the plain data types shared by the manifest,
// descriptor, build, deploy and storage layers.
package model

import (
	"fmt"
	"time"
)

// Dependency is one pinned record of a dependency manifest.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Extras are kept verbatim, e.g. "psycopg[binary]" -> ["binary"].
	Extras []string `json:"extras,omitempty"`
	// Marker is the environment marker after ';', if any.
	Marker string `json:"marker,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// String returns the requirement in name==version form.
func (d Dependency) String() string {
	return fmt.Sprintf("%s==%s", d.Name, d.Version)
}

// Manifest is the parsed dependency manifest.
type Manifest struct {
	Path         string       `json:"path,omitempty"`
	Dependencies []Dependency `json:"dependencies"`
}

// EnvSource describes where a declared environment variable gets its value.
type EnvSource string

const (
	EnvLiteral   EnvSource = "value"
	EnvGenerated EnvSource = "generate"
	EnvExternal  EnvSource = "external"
)

// EnvVarDecl is a single environment variable declaration of a service.
type EnvVarDecl struct {
	Key           string `yaml:"key" json:"key"`
	Value         string `yaml:"value,omitempty" json:"value,omitempty"`
	GenerateValue bool   `yaml:"generateValue,omitempty" json:"generate_value,omitempty"`
	Sync          *bool  `yaml:"sync,omitempty" json:"sync,omitempty"`
}

// Source reports how the value of the variable is obtained. Validation
// guarantees exactly one source is declared.
func (e EnvVarDecl) Source() EnvSource {
	switch {
	case e.GenerateValue:
		return EnvGenerated
	case e.Sync != nil && !*e.Sync:
		return EnvExternal
	default:
		return EnvLiteral
	}
}

// Service is one entry of a deployment descriptor.
type Service struct {
	Type            string       `yaml:"type" json:"type"`
	Name            string       `yaml:"name" json:"name"`
	Env             string       `yaml:"env,omitempty" json:"env,omitempty"`
	Plan            string       `yaml:"plan,omitempty" json:"plan,omitempty"`
	BuildCommand    string       `yaml:"buildCommand,omitempty" json:"build_command,omitempty"`
	StartCommand    string       `yaml:"startCommand,omitempty" json:"start_command,omitempty"`
	HealthCheckPath string       `yaml:"healthCheckPath,omitempty" json:"health_check_path,omitempty"`
	EnvVars         []EnvVarDecl `yaml:"envVars,omitempty" json:"env_vars,omitempty"`
}

// Topology is the process layout requested by a start command.
type Topology struct {
	App       string        `json:"app,omitempty"`
	Workers   int           `json:"workers"`
	Threads   int           `json:"threads"`
	Timeout   time.Duration `json:"timeout"`
	Bind      string        `json:"bind"`
	AccessLog string        `json:"access_log,omitempty"`
	ErrorLog  string        `json:"error_log,omitempty"`
	LogLevel  string        `json:"log_level,omitempty"`
}

// Capacity is the maximum number of requests handled at the same time.
func (t Topology) Capacity() int { return t.Workers * t.Threads }

// BuildStatus is the outcome of a build step.
type BuildStatus string

const (
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

// Build is a recorded execution of the build step.
type Build struct {
	ID             int         `json:"id"`
	Service        string      `json:"service"`
	Fingerprint    string      `json:"fingerprint"`
	RuntimeVersion string      `json:"runtime_version"`
	Status         BuildStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DeploymentStatus tracks a deployment through its stages.
type DeploymentStatus string

const (
	DeploymentPending  DeploymentStatus = "pending"
	DeploymentBuilding DeploymentStatus = "building"
	DeploymentStarting DeploymentStatus = "starting"
	DeploymentLive     DeploymentStatus = "live"
	DeploymentFailed   DeploymentStatus = "failed"
)

// Deployment is one attempt at bringing a service up.
type Deployment struct {
	ID                    string           `json:"id"`
	Service               string           `json:"service"`
	ManifestFingerprint   string           `json:"manifest_fingerprint"`
	DescriptorFingerprint string           `json:"descriptor_fingerprint"`
	// Dependencies is the manifest snapshot the deployment was built from.
	Dependencies []Dependency `json:"dependencies,omitempty"`
	// SecretFingerprints maps env keys to short digests; values are never stored.
	SecretFingerprints map[string]string `json:"secret_fingerprints,omitempty"`
	Status             DeploymentStatus  `json:"status"`
	Error              string            `json:"error,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Terminal reports whether no further transitions are expected.
func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentLive || s == DeploymentFailed
}

// AuditLogEntry represents a single event in the audit log.
type AuditLogEntry struct {
	ID        int    `json:"id"`
	Timestamp string `json:"timestamp"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Details   string `json:"details"`
}
