// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/apx-tools/apx/lib/clock"
	"github.com/apx-tools/apx/lib/config"
	"github.com/apx-tools/apx/lib/logstore"
	"github.com/apx-tools/apx/lib/process"
	"github.com/apx-tools/apx/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		dbPath      string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to the config file (default $APX_CONFIG)")
	flag.StringVar(&listen, "listen", "", "listen address (overrides config)")
	flag.StringVar(&dbPath, "db", "", "database file path (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("apx-log-service")
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	store, err := logstore.Open(logstore.Config{
		Path:      cfg.DatabasePath,
		Clock:     clock.Real(),
		Logger:    logger,
		Retention: cfg.Retention,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Info("log store opened",
		"path", cfg.DatabasePath,
		"records", stats.RecordCount,
		"size_bytes", stats.DatabaseSizeBytes,
	)

	service := newLogService(store, clock.Real(), logger)

	// The retention sweep runs for the life of the process,
	// independent of the request path.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		service.runRetention(ctx, cfg.CleanupInterval)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", service.handleIngest)
	mux.HandleFunc("/health", service.handleHealth)

	// Bind explicitly so a bind failure surfaces at startup instead of
	// from a background goroutine.
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("binding %s: %w", cfg.Listen, err)
	}

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(listener)
	}()

	logger.Info("telemetry receiver running",
		"listen", listener.Addr().String(),
		"retention", cfg.Retention.String(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverDone:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	<-schedulerDone
	return nil
}
