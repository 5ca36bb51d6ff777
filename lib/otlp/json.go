// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package otlp

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/valyala/fastjson"

	"github.com/apx-tools/apx/lib/applog"
)

// ParseJSON decodes the JSON mapping of an OTLP export-logs request.
// Both camelCase and snake_case field names are accepted. Invalid JSON
// syntax fails the call; an envelope without resources, scopes, or
// records yields zero records and no error.
func ParseJSON(data []byte) ([]applog.Record, error) {
	var parser fastjson.Parser
	root, err := parser.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("otlp: parsing export request: %w", err)
	}

	var records []applog.Record
	for _, resourceLogs := range jsonArray(root, "resourceLogs", "resource_logs") {
		resourceAttrs, serviceName, appPath := parseJSONResource(resourceLogs.Get("resource"))
		for _, scopeLogs := range jsonArray(resourceLogs, "scopeLogs", "scope_logs") {
			for _, logRecord := range jsonArray(scopeLogs, "logRecords", "log_records") {
				records = append(records, parseJSONLogRecord(logRecord, resourceAttrs, serviceName, appPath))
			}
		}
	}
	return records, nil
}

// jsonArray returns the array at the first of the given keys that
// holds one. Missing keys and non-array values yield nil.
func jsonArray(v *fastjson.Value, keys ...string) []*fastjson.Value {
	if v == nil {
		return nil
	}
	for _, key := range keys {
		if array := v.GetArray(key); array != nil {
			return array
		}
	}
	return nil
}

// parseJSONResource collects the resource attributes into a JSON blob
// and captures the service.name and apx.app_path values. The scan
// overwrites on every string match, so the last occurrence of a
// duplicated key wins.
func parseJSONResource(resource *fastjson.Value) (attrsJSON, serviceName, appPath string) {
	if resource == nil {
		return "", "", ""
	}

	attrs := make(map[string]any)
	for _, kv := range jsonArray(resource, "attributes") {
		key := string(kv.GetStringBytes("key"))
		if key == "" {
			continue
		}
		value := decodeJSONValue(kv.Get("value"))
		attrs[key] = value

		if text, ok := value.(string); ok {
			switch key {
			case serviceNameKey:
				serviceName = text
			case appPathKey:
				appPath = text
			}
		}
	}

	return attributesJSON(attrs), serviceName, appPath
}

// parseJSONLogRecord normalizes one JSON log record. Field-level
// anomalies default rather than fail: an unparsable timestamp becomes
// zero, a missing body becomes empty.
func parseJSONLogRecord(logRecord *fastjson.Value, resourceAttrs, serviceName, appPath string) applog.Record {
	timestamp := jsonUnixNano(logRecord, "timeUnixNano", "time_unix_nano")
	observed := jsonUnixNano(logRecord, "observedTimeUnixNano", "observed_time_unix_nano")

	record := applog.Record{
		TimestampNanos:     timestamp,
		ObservedNanos:      maxInt64(observed, timestamp),
		SeverityNumber:     jsonSeverityNumber(logRecord),
		SeverityText:       jsonString(logRecord, "severityText", "severity_text"),
		Body:               valueString(decodeJSONValue(logRecord.Get("body"))),
		ServiceName:        serviceName,
		AppPath:            appPath,
		ResourceAttributes: resourceAttrs,
	}

	attrs := make(map[string]any)
	for _, kv := range jsonArray(logRecord, "attributes") {
		key := string(kv.GetStringBytes("key"))
		if key == "" {
			continue
		}
		attrs[key] = decodeJSONValue(kv.Get("value"))
	}
	record.LogAttributes = attributesJSON(attrs)

	if traceID := jsonString(logRecord, "traceId", "trace_id"); !allZeroHex(traceID) {
		record.TraceID = traceID
	}
	if spanID := jsonString(logRecord, "spanId", "span_id"); !allZeroHex(spanID) {
		record.SpanID = spanID
	}

	return record
}

// decodeJSONValue decodes a tagged value node from the JSON mapping.
// Recognized scalar shapes (stringValue, boolValue, intValue,
// doubleValue) decode to their Go forms. Every other shape — arrays,
// key/value lists, byte strings, or anything unexpected — is
// re-serialized verbatim as a raw JSON fragment. The protobuf path
// decodes those shapes recursively instead; see the package comment.
func decodeJSONValue(value *fastjson.Value) any {
	if value == nil {
		return nil
	}

	if text := jsonField(value, "stringValue", "string_value"); text != nil {
		if b, err := text.StringBytes(); err == nil {
			return string(b)
		}
	}
	if boolean := jsonField(value, "boolValue", "bool_value"); boolean != nil {
		if b, err := boolean.Bool(); err == nil {
			return b
		}
	}
	if integer := jsonField(value, "intValue", "int_value"); integer != nil {
		// The JSON mapping carries int64 as a string; some producers
		// send a bare number.
		if b, err := integer.StringBytes(); err == nil {
			if parsed, err := strconv.ParseInt(string(b), 10, 64); err == nil {
				return parsed
			}
		} else if parsed, err := integer.Int64(); err == nil {
			return parsed
		}
	}
	if double := jsonField(value, "doubleValue", "double_value"); double != nil {
		if parsed, err := double.Float64(); err == nil {
			return parsed
		}
	}

	return json.RawMessage(value.MarshalTo(nil))
}

// jsonField returns the member at the first of the given keys that is
// present, or nil.
func jsonField(v *fastjson.Value, keys ...string) *fastjson.Value {
	for _, key := range keys {
		if node := v.Get(key); node != nil {
			return node
		}
	}
	return nil
}

// jsonString returns the string at the first matching key, or "".
func jsonString(v *fastjson.Value, keys ...string) string {
	if v == nil {
		return ""
	}
	for _, key := range keys {
		if b := v.GetStringBytes(key); b != nil {
			return string(b)
		}
	}
	return ""
}

// jsonUnixNano parses a nanosecond timestamp that may arrive as a
// string (the canonical uint64 mapping) or a bare number. Missing or
// unparsable values yield zero.
func jsonUnixNano(v *fastjson.Value, keys ...string) int64 {
	if v == nil {
		return 0
	}
	for _, key := range keys {
		node := v.Get(key)
		if node == nil {
			continue
		}
		if b, err := node.StringBytes(); err == nil {
			parsed, err := strconv.ParseInt(string(b), 10, 64)
			if err != nil {
				return 0
			}
			return parsed
		}
		if parsed, err := node.Int64(); err == nil {
			return parsed
		}
		return 0
	}
	return 0
}

// jsonSeverityNumber reads the severity number, which the JSON mapping
// may carry as a number or a numeric string. Zero means absent.
func jsonSeverityNumber(v *fastjson.Value) int32 {
	if v == nil {
		return 0
	}
	for _, key := range []string{"severityNumber", "severity_number"} {
		node := v.Get(key)
		if node == nil {
			continue
		}
		if parsed, err := node.Int64(); err == nil {
			return int32(parsed)
		}
		if b, err := node.StringBytes(); err == nil {
			if parsed, err := strconv.ParseInt(string(b), 10, 32); err == nil {
				return int32(parsed)
			}
		}
		return 0
	}
	return 0
}
