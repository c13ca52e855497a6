// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads Launchpad's settings from defaults, config files,
// LAUNCHPAD_* environment variables and command-line flags (in increasing
// precedence) and writes default config files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the persisted application configuration.
type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`
	Language string `mapstructure:"language" yaml:"language"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Service  struct {
		Descriptor string `mapstructure:"descriptor" yaml:"descriptor"`
		Manifest   string `mapstructure:"manifest" yaml:"manifest"`
		Name       string `mapstructure:"name" yaml:"name,omitempty"`
		EnvFile    string `mapstructure:"env_file" yaml:"env_file,omitempty"`
	} `mapstructure:"service" yaml:"service"`
	Index struct {
		URL string `mapstructure:"url" yaml:"url"`
	} `mapstructure:"index" yaml:"index"`
}

// Defaults returns the built-in value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":      "sqlite",
		"database.dsn":       "./launchpad.db",
		"language":           "en",
		"log_level":          "info",
		"service.descriptor": "render.yaml",
		"service.manifest":   "requirements.txt",
		"service.name":       "",
		"service.env_file":   ".env",
		"index.url":          "https://pypi.org",
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Launchpad")
		default: // Linux, macOS, etc.
			configDir = "/etc/launchpad"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "launchpad")
	}

	return filepath.Join(configDir, "launchpad.yaml"), nil
}

// LoadConfig resolves a T from defaults, the first launchpad.yaml found
// (explicit path, user config dir, system dir, working directory), the
// environment and the flags of cmd. A missing config file is reported as
// viper.ConfigFileNotFoundError together with the resolved value.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T
	v := viper.New()

	// 1. Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Set up file search paths
	v.SetConfigName("launchpad")
	v.SetConfigType("yaml")

	// 3. An explicit --config path has the highest precedence among files.
	if additionalConfigFilePath != nil {
		v.SetConfigFile(*additionalConfigFilePath)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	// 4. Read in the config file. Not finding one is fine.
	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
		notFound = err
	}

	// 5. Environment variables: LAUNCHPAD_DATABASE_DSN etc.
	v.SetEnvPrefix("launchpad")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 6. Flags
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, notFound
}

// WriteConfigFile stores c as YAML at the user (or system) config path and
// returns that path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	return path, WriteConfigFileTo(c, path)
}

// WriteConfigFileTo stores c as YAML at path, creating parent directories.
func WriteConfigFileTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600: the file may carry a database DSN with credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("could not write config file %s: %w", path, err)
	}
	return nil
}
