// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Apx-logs queries the telemetry database written by apx-log-service.
// It reads the SQLite file directly (WAL mode permits concurrent reads
// while the receiver writes), so it works whether or not the receiver
// is running.
//
// Point-in-time mode prints every record whose effective timestamp
// falls inside the window and exits. Follow mode prints the window,
// then polls for rows with ids beyond the last one printed, so a batch
// committed mid-poll is never split or repeated.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/apx-tools/apx/lib/applog"
	"github.com/apx-tools/apx/lib/clock"
	"github.com/apx-tools/apx/lib/config"
	"github.com/apx-tools/apx/lib/logstore"
	"github.com/apx-tools/apx/lib/process"
	"github.com/apx-tools/apx/lib/version"
)

// followPollInterval is how often follow mode checks for new rows.
const followPollInterval = time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath string
		dbPath     string
		appPath    string
		since      string
		limit      int
		follow     bool
		jsonOutput bool
		noColor    bool
	)

	flagSet := pflag.NewFlagSet("apx-logs", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default $APX_CONFIG)")
	flagSet.StringVar(&dbPath, "db", "", "database file path (overrides config)")
	flagSet.StringVarP(&appPath, "app-path", "a", "", "filter by application path (substring match, either direction)")
	flagSet.StringVar(&since, "since", "1h", "start of the time window (duration like 30m or 7d, or RFC3339 timestamp)")
	flagSet.IntVarP(&limit, "limit", "n", 0, "maximum number of records to print (0 = no limit)")
	flagSet.BoolVarP(&follow, "follow", "f", false, "keep running and print new records as they arrive")
	flagSet.BoolVar(&jsonOutput, "json", false, "print records as JSON lines instead of formatted text")
	flagSet.BoolVar(&noColor, "no-color", false, "disable severity coloring")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the service binary.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("apx-logs")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		return fmt.Errorf("no log database at %s (is apx-log-service running?)", cfg.DatabasePath)
	}

	sinceNanos, err := parseSinceFlag(since)
	if err != nil {
		return fmt.Errorf("--since: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := logstore.Open(logstore.Config{
		Path:  cfg.DatabasePath,
		Clock: clock.Real(),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	output := newRenderer(jsonOutput, noColor)

	records, err := store.QueryLogs(ctx, appPath, sinceNanos, limit)
	if err != nil {
		return err
	}
	for i := range records {
		fmt.Println(output.Render(&records[i]))
	}

	if !follow {
		return nil
	}

	// Seed the cursor past everything already printed. When the window
	// was empty the latest stored id still bounds it, so history older
	// than the window is never replayed.
	cursor, err := store.LatestID(ctx)
	if err != nil {
		return err
	}
	if n := len(records); n > 0 && records[n-1].ID > cursor {
		cursor = records[n-1].ID
	}

	return followLogs(ctx, store, output, clock.Real(), appPath, cursor)
}

// followLogs polls for rows beyond cursor until ctx is cancelled.
func followLogs(ctx context.Context, store *logstore.Store, output *renderer, clk clock.Clock, appPath string, cursor int64) error {
	ticker := clk.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		records, err := store.QueryLogsAfterID(ctx, appPath, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for i := range records {
			fmt.Println(output.Render(&records[i]))
			if records[i].ID > cursor {
				cursor = records[i].ID
			}
		}
	}
}

// parseSinceFlag resolves the --since value to an absolute Unix
// nanosecond bound. Durations ("30m", "2h") and day suffixes ("7d")
// are relative to now; RFC3339 and date-only values are absolute.
func parseSinceFlag(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}

	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err == nil && days > 0 {
			return time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixNano(), nil
		}
	}

	duration, err := time.ParseDuration(value)
	if err == nil {
		return time.Now().Add(-duration).UnixNano(), nil
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp.UnixNano(), nil
	}

	timestamp, err = time.Parse("2006-01-02", value)
	if err == nil {
		return timestamp.UnixNano(), nil
	}

	return 0, fmt.Errorf("invalid time %q: expected duration (1h, 7d), RFC3339 timestamp, or date (2006-01-02)", value)
}

// jsonRecord is the --json output shape. Absent optional fields are
// omitted rather than emitted as empty strings.
type jsonRecord struct {
	ID                 int64           `json:"id"`
	Timestamp          int64           `json:"timestamp"`
	Severity           string          `json:"severity"`
	SeverityNumber     int32           `json:"severity_number,omitempty"`
	SeverityText       string          `json:"severity_text,omitempty"`
	Body               string          `json:"body,omitempty"`
	ServiceName        string          `json:"service_name,omitempty"`
	AppPath            string          `json:"app_path,omitempty"`
	ResourceAttributes json.RawMessage `json:"resource_attributes,omitempty"`
	LogAttributes      json.RawMessage `json:"log_attributes,omitempty"`
	TraceID            string          `json:"trace_id,omitempty"`
	SpanID             string          `json:"span_id,omitempty"`
}

func toJSONRecord(record *applog.Record) jsonRecord {
	out := jsonRecord{
		ID:             record.ID,
		Timestamp:      record.EffectiveTimestamp(),
		Severity:       applog.SeverityName(record.SeverityNumber),
		SeverityNumber: record.SeverityNumber,
		SeverityText:   record.SeverityText,
		Body:           record.Body,
		ServiceName:    record.ServiceName,
		AppPath:        record.AppPath,
		TraceID:        record.TraceID,
		SpanID:         record.SpanID,
	}
	if record.ResourceAttributes != "" {
		out.ResourceAttributes = json.RawMessage(record.ResourceAttributes)
	}
	if record.LogAttributes != "" {
		out.LogAttributes = json.RawMessage(record.LogAttributes)
	}
	return out
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Apx log viewer.

Prints records stored by apx-log-service, newest last. By default the
window is the last hour; --since widens or narrows it. With --follow
the viewer keeps running and prints new records as they are committed.

The --app-path filter matches as a substring in either direction, so
"demo" matches "/home/dev/demo" and an absolute filter matches a
relative stored path.

Usage:
  apx-logs [flags]

Examples:
  # Last hour of logs
  apx-logs

  # Follow one application's logs
  apx-logs --app-path /home/dev/demo --follow

  # Machine-readable output for the last day
  apx-logs --since 1d --json

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
