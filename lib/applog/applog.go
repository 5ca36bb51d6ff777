// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Package applog defines the canonical log record shape shared by the
// ingestion parser, the storage engine, the receiver service, and the
// CLI. A Record is the normalized form of one OTLP log record after
// resource-level attributes have been flattened onto it.
package applog

import "fmt"

// Record is the sole persisted entity of the telemetry receiver. It is
// created once by a batch insert, is never updated, and is destroyed
// only by the retention sweep.
//
// Optional string fields use "" for absent; SeverityNumber uses 0.
// Attribute blobs are JSON text serialized at ingestion time and
// preserved verbatim for later inspection.
type Record struct {
	// ID is the store-assigned surrogate. Monotonically increasing,
	// consistent with commit order, and used as the follow-mode
	// cursor. Zero until the record has been read back from the store.
	ID int64

	// TimestampNanos is the producer-reported event time as Unix
	// nanoseconds. Zero when the producer did not report one.
	TimestampNanos int64

	// ObservedNanos is the time the record was observed by the
	// exporting process. The parser enforces ObservedNanos >=
	// TimestampNanos by taking the max at ingestion.
	ObservedNanos int64

	// SeverityNumber follows OpenTelemetry severity numbering
	// (1..24). Zero means absent.
	SeverityNumber int32

	SeverityText string
	Body         string

	// ServiceName and AppPath are extracted from the resource-level
	// attributes "service.name" and "apx.app_path".
	ServiceName string
	AppPath     string

	// ResourceAttributes and LogAttributes hold the full attribute
	// sets as JSON text. Empty string means no attributes.
	ResourceAttributes string
	LogAttributes      string

	// TraceID and SpanID are lowercase hex strings. Empty when the
	// source value was empty or entirely zero.
	TraceID string
	SpanID  string

	// CreatedAt is the ingestion wall-clock time in Unix seconds, set
	// by the store. Used only for retention, never for ordering.
	CreatedAt int64
}

// EffectiveTimestamp returns the ordering-relevant timestamp:
// TimestampNanos when nonzero, otherwise ObservedNanos. Some producers
// (the dev server's own diagnostics) legitimately report a zero
// TimestampNanos, so all ordering and time-range filtering goes
// through this instead of TimestampNanos directly.
func (r Record) EffectiveTimestamp() int64 {
	if r.TimestampNanos != 0 {
		return r.TimestampNanos
	}
	return r.ObservedNanos
}

// SeverityName returns the OpenTelemetry severity range name for a
// severity number: TRACE, DEBUG, INFO, WARN, ERROR, or FATAL. Numbers
// outside 1..24 render as the bare number.
func SeverityName(number int32) string {
	switch {
	case number < 1 || number > 24:
		return fmt.Sprintf("SEV%d", number)
	case number <= 4:
		return "TRACE"
	case number <= 8:
		return "DEBUG"
	case number <= 12:
		return "INFO"
	case number <= 16:
		return "WARN"
	case number <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}
