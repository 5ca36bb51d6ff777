// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Package logstore owns the embedded SQLite database behind the
// telemetry receiver. It exposes transactional batch inserts,
// time-based and cursor-based queries, and the retention delete.
//
// One append-only table holds every record. Rows are created by
// InsertLogs, never updated, and deleted only by CleanupOldLogs once
// their ingestion time falls outside the retention window. Surrogate
// ids are assigned by SQLite in commit order and are never reused
// (AUTOINCREMENT), which keeps follow-mode cursors valid across
// retention sweeps.
package logstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/apx-tools/apx/lib/applog"
	"github.com/apx-tools/apx/lib/clock"
	"github.com/apx-tools/apx/lib/sqlitepool"
)

// DefaultRetention is the window after which records become eligible
// for deletion by the retention sweep.
const DefaultRetention = 7 * 24 * time.Hour

// effectiveTimestamp is the SQL form of the ordering rule: a record
// with a zero producer timestamp orders by its observed timestamp.
const effectiveTimestamp = "CASE WHEN timestamp_ns <> 0 THEN timestamp_ns ELSE observed_timestamp_ns END"

const schema = `
	CREATE TABLE IF NOT EXISTS logs (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp_ns          INTEGER NOT NULL,
		observed_timestamp_ns INTEGER NOT NULL,
		severity_number       INTEGER,
		severity_text         TEXT,
		body                  TEXT,
		service_name          TEXT,
		app_path              TEXT,
		resource_attributes   TEXT,
		log_attributes        TEXT,
		trace_id              TEXT,
		span_id               TEXT,
		created_at            INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp_ns);
	CREATE INDEX IF NOT EXISTS idx_logs_app_path ON logs(app_path);
	CREATE INDEX IF NOT EXISTS idx_logs_service ON logs(service_name);
	CREATE INDEX IF NOT EXISTS idx_logs_created ON logs(created_at);
`

const recordColumns = "id, timestamp_ns, observed_timestamp_ns, severity_number, " +
	"severity_text, body, service_name, app_path, resource_attributes, " +
	"log_attributes, trace_id, span_id, created_at"

// Store manages the receiver's SQLite database. All access goes
// through a one-connection pool: each operation takes the connection,
// runs to completion, and puts it back, so concurrent request handlers
// and the retention sweep serialize cleanly.
type Store struct {
	pool      *sqlitepool.Pool
	clock     clock.Clock
	logger    *slog.Logger
	retention time.Duration
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the database file. The parent
	// directory must exist. Required.
	Path string

	// Clock stamps created_at on inserts and anchors the retention
	// cutoff. Required.
	Clock clock.Clock

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger

	// Retention overrides the window used by CleanupOldLogs. Zero or
	// negative means DefaultRetention.
	Retention time.Duration
}

// Open creates the store, creating the database file and schema on
// first run. Schema changes are additive only; there is no migration
// framework.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("logstore: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("logstore: %w", err)
	}

	return &Store{
		pool:      pool,
		clock:     cfg.Clock,
		logger:    logger,
		retention: retention,
	}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// InsertLogs writes a batch of records in a single transaction: either
// every record commits or none does, so a follow-mode reader never
// sees a partially applied batch. Rows are inserted in input order;
// ids follow commit order. Returns the number of records committed.
func (s *Store) InsertLogs(ctx context.Context, records []applog.Record) (count int, err error) {
	if len(records) == 0 {
		return 0, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("logstore: insert: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("logstore: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	createdAt := s.clock.Now().Unix()
	for i := range records {
		if err = s.insertRecord(conn, &records[i], createdAt); err != nil {
			return 0, err
		}
	}

	return len(records), nil
}

func (s *Store) insertRecord(conn *sqlite.Conn, record *applog.Record, createdAt int64) error {
	err := sqlitex.Execute(conn, `INSERT INTO logs
		(timestamp_ns, observed_timestamp_ns, severity_number, severity_text,
		 body, service_name, app_path, resource_attributes, log_attributes,
		 trace_id, span_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.TimestampNanos,
				record.ObservedNanos,
				nullableInt(int64(record.SeverityNumber)),
				nullableText(record.SeverityText),
				nullableText(record.Body),
				nullableText(record.ServiceName),
				nullableText(record.AppPath),
				nullableText(record.ResourceAttributes),
				nullableText(record.LogAttributes),
				nullableText(record.TraceID),
				nullableText(record.SpanID),
				createdAt,
			},
		})
	if err != nil {
		return fmt.Errorf("logstore: insert record: %w", err)
	}
	return nil
}

// nullableText stores "" as NULL so absent optional fields stay
// distinguishable in the database.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableInt stores 0 as NULL.
func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// QueryLogs returns records whose effective timestamp is at or after
// sinceNanos, ordered ascending by effective timestamp. A nonzero
// limit caps the result. appPath, when non-empty, matches
// bidirectionally as a substring — the stored path contains the filter
// or the filter contains the stored path — so absolute and relative
// path forms find each other.
func (s *Store) QueryLogs(ctx context.Context, appPath string, sinceNanos int64, limit int) ([]applog.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("logstore: query: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT " + recordColumns + " FROM logs WHERE " +
		effectiveTimestamp + " >= ?"
	args := []any{sinceNanos}

	if appPath != "" {
		query += " AND (instr(app_path, ?) > 0 OR instr(?, app_path) > 0)"
		args = append(args, appPath, appPath)
	}

	query += " ORDER BY " + effectiveTimestamp + " ASC, id ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.selectRecords(conn, query, args)
}

// QueryLogsAfterID returns records with id greater than afterID,
// ordered ascending by effective timestamp, with the same path
// matching rule as QueryLogs. Callers in follow mode advance afterID
// to the id of the last row they consumed; ids are commit-ordered and
// never reused, so the cursor never skips or repeats a row.
func (s *Store) QueryLogsAfterID(ctx context.Context, appPath string, afterID int64) ([]applog.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("logstore: query after id: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT " + recordColumns + " FROM logs WHERE id > ?"
	args := []any{afterID}

	if appPath != "" {
		query += " AND (instr(app_path, ?) > 0 OR instr(?, app_path) > 0)"
		args = append(args, appPath, appPath)
	}

	query += " ORDER BY " + effectiveTimestamp + " ASC, id ASC"

	return s.selectRecords(conn, query, args)
}

// LatestID returns the current maximum surrogate id, or 0 when the
// store is empty. This seeds a follow-mode cursor.
func (s *Store) LatestID(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("logstore: latest id: %w", err)
	}
	defer s.pool.Put(conn)

	var latest int64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(id), 0) FROM logs", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			latest = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("logstore: latest id: %w", err)
	}
	return latest, nil
}

// CleanupOldLogs deletes every row whose created_at precedes now minus
// the retention window and returns the number deleted. created_at is
// the ingestion time, not the record's own timestamp: a record is kept
// for the window after it arrived, however old its content claims to
// be.
func (s *Store) CleanupOldLogs(ctx context.Context) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("logstore: cleanup: %w", err)
	}
	defer s.pool.Put(conn)

	cutoff := s.clock.Now().Add(-s.retention).Unix()
	err = sqlitex.Execute(conn, "DELETE FROM logs WHERE created_at < ?", &sqlitex.ExecOptions{
		Args: []any{cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("logstore: cleanup: %w", err)
	}

	deleted := int64(conn.Changes())
	if deleted > 0 {
		s.logger.Info("retention sweep deleted rows",
			"deleted", deleted,
			"cutoff", cutoff,
		)
	}
	return deleted, nil
}

// Stats holds storage statistics for status logging.
type Stats struct {
	RecordCount       int64
	LatestID          int64
	DatabaseSizeBytes int64
}

// Stats returns current storage statistics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("logstore: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM logs", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.RecordCount = stmt.ColumnInt64(0)
			stats.LatestID = stmt.ColumnInt64(1)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("logstore: stats: %w", err)
	}

	err = sqlitex.Execute(conn, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats.DatabaseSizeBytes = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("logstore: database size: %w", err)
	}

	return stats, nil
}

func (s *Store) selectRecords(conn *sqlite.Conn, query string, args []any) ([]applog.Record, error) {
	var records []applog.Record
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanRecord(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("logstore: select: %w", err)
	}
	return records, nil
}

func scanRecord(stmt *sqlite.Stmt) applog.Record {
	// Columns follow recordColumns: id(0), timestamp_ns(1),
	// observed_timestamp_ns(2), severity_number(3), severity_text(4),
	// body(5), service_name(6), app_path(7), resource_attributes(8),
	// log_attributes(9), trace_id(10), span_id(11), created_at(12).
	return applog.Record{
		ID:                 stmt.ColumnInt64(0),
		TimestampNanos:     stmt.ColumnInt64(1),
		ObservedNanos:      stmt.ColumnInt64(2),
		SeverityNumber:     int32(stmt.ColumnInt64(3)),
		SeverityText:       stmt.ColumnText(4),
		Body:               stmt.ColumnText(5),
		ServiceName:        stmt.ColumnText(6),
		AppPath:            stmt.ColumnText(7),
		ResourceAttributes: stmt.ColumnText(8),
		LogAttributes:      stmt.ColumnText(9),
		TraceID:            stmt.ColumnText(10),
		SpanID:             stmt.ColumnText(11),
		CreatedAt:          stmt.ColumnInt64(12),
	}
}
