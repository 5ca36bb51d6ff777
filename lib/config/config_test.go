// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apx-tools/apx/lib/logstore"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Listen, DefaultListen)
	}
	if cfg.Retention != logstore.DefaultRetention {
		t.Errorf("Retention = %v, want %v", cfg.Retention, logstore.DefaultRetention)
	}
	if cfg.CleanupInterval != DefaultCleanupInterval {
		t.Errorf("CleanupInterval = %v, want %v", cfg.CleanupInterval, DefaultCleanupInterval)
	}
	if filepath.Base(cfg.DatabasePath) != "logs.db" {
		t.Errorf("DatabasePath = %q, want .../logs.db", cfg.DatabasePath)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: "127.0.0.1:9999"
database_path: /tmp/custom.db
retention: 48h
cleanup_interval: 30m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.DatabasePath != "/tmp/custom.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.Retention != 48*time.Hour {
		t.Errorf("Retention = %v, want 48h", cfg.Retention)
	}
	if cfg.CleanupInterval != 30*time.Minute {
		t.Errorf("CleanupInterval = %v, want 30m", cfg.CleanupInterval)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \"0.0.0.0:4318\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:4318" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Retention != logstore.DefaultRetention {
		t.Errorf("Retention = %v, want default for unset field", cfg.Retention)
	}
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \"127.0.0.1:5555\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:5555" {
		t.Errorf("Listen = %q, want value from $%s file", cfg.Listen, EnvVar)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("want error for missing file named explicitly")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("retention: sometime\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("want error for unparsable retention")
	}
}
