// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

// Package otlp decodes OTLP/HTTP export-logs payloads into canonical
// [applog.Record] values. Both wire mappings are supported: the
// protobuf encoding ([ParseProtobuf]) and the JSON encoding
// ([ParseJSON]).
//
// A malformed top-level envelope (invalid JSON syntax, invalid
// protobuf framing) fails the whole call. Missing or empty
// intermediate arrays — no resources, no scopes, no records — are
// tolerated and yield zero records. Field-level anomalies (missing
// optional fields, unparsable timestamps, unknown attribute shapes)
// are defaulted, never escalated.
//
// The two paths decode attribute values differently. The protobuf path
// decodes every tagged value recursively: string, bool, int, double,
// byte-string (hex-encoded), list, and key/value map. The JSON path
// decodes only the scalar shapes (stringValue, boolValue, intValue,
// doubleValue) and re-serializes any other value node verbatim into
// the stored attribute blob. Tooling reading the blobs must accept
// both renderings.
package otlp
