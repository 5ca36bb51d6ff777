// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the receiver's configuration.
//
// Configuration comes from a single YAML file named by the APX_CONFIG
// environment variable or a --config flag. No file means defaults:
// there is no search path and no hidden override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apx-tools/apx/lib/logstore"
)

// EnvVar names the environment variable that points at the config
// file when no --config flag is given.
const EnvVar = "APX_CONFIG"

// Defaults.
const (
	// DefaultListen is the OTLP/HTTP default port, bound to loopback:
	// the receiver serves a single trusted local producer.
	DefaultListen = "127.0.0.1:4318"

	// DefaultCleanupInterval is how often the retention scheduler
	// runs.
	DefaultCleanupInterval = time.Hour
)

// Config holds the receiver's settings.
type Config struct {
	// Listen is the TCP address the HTTP receiver binds.
	Listen string

	// DatabasePath is the SQLite file location. Defaults to a fixed
	// per-user path under the user cache directory.
	DatabasePath string

	// Retention is the window after which stored records are deleted.
	Retention time.Duration

	// CleanupInterval is the period of the retention scheduler.
	CleanupInterval time.Duration
}

// fileConfig is the YAML shape. Durations are Go duration strings
// ("168h", "30m").
type fileConfig struct {
	Listen          string `yaml:"listen"`
	DatabasePath    string `yaml:"database_path"`
	Retention       string `yaml:"retention"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// Load reads the config file at path, or at $APX_CONFIG when path is
// empty. An empty result for both means pure defaults. Unset fields
// fall back to their defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Listen:          DefaultListen,
		Retention:       logstore.DefaultRetention,
		CleanupInterval: DefaultCleanupInterval,
	}

	defaultDB, err := DefaultDatabasePath()
	if err != nil {
		return Config{}, err
	}
	cfg.DatabasePath = defaultDB

	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if file.Listen != "" {
		cfg.Listen = file.Listen
	}
	if file.DatabasePath != "" {
		cfg.DatabasePath = file.DatabasePath
	}
	if file.Retention != "" {
		retention, err := time.ParseDuration(file.Retention)
		if err != nil {
			return Config{}, fmt.Errorf("config: retention: %w", err)
		}
		cfg.Retention = retention
	}
	if file.CleanupInterval != "" {
		interval, err := time.ParseDuration(file.CleanupInterval)
		if err != nil {
			return Config{}, fmt.Errorf("config: cleanup_interval: %w", err)
		}
		cfg.CleanupInterval = interval
	}

	return cfg, nil
}

// DefaultDatabasePath returns the fixed per-user database location,
// <user cache dir>/apx/logs.db. The directory is not created here;
// the store's opener handles that.
func DefaultDatabasePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving user cache dir: %w", err)
	}
	return filepath.Join(cacheDir, "apx", "logs.db"), nil
}
