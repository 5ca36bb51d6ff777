// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Apx-log-service is the local telemetry receiver. It accepts OTLP
// log export batches over HTTP, normalizes them into canonical
// records, persists them to an embedded SQLite database with bounded
// retention, and leaves querying to the apx-logs CLI, which reads the
// same database file.
//
// # Endpoints
//
//   - POST /v1/logs — OTLP export-logs ingestion. The Content-Type
//     header selects the decoder: application/x-protobuf for the
//     binary mapping, anything else (including none) for the JSON
//     mapping. Bodies may be gzip-compressed (Content-Encoding: gzip).
//     Responds 200 on success (including empty batches), 400 on a
//     decode failure, 500 on a storage failure.
//   - GET /health — liveness probe. 200, empty body.
//
// There is no authentication, TLS, or rate limiting: the receiver
// serves a single trusted local producer, the apx dev server, which
// exports its request logs and its own diagnostics here.
//
// # Retention
//
// A background scheduler runs a cleanup pass at startup and then every
// hour, deleting rows ingested more than seven days ago. A failed pass
// is logged and retried at the next interval boundary.
package main
