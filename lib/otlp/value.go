// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package otlp

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Resource attribute keys captured onto every record produced under
// the resource. The scan overwrites on every match, so a duplicate key
// yields the last occurrence.
const (
	serviceNameKey = "service.name"
	appPathKey     = "apx.app_path"
)

// attributesJSON serializes a decoded attribute map to JSON text for
// storage. Returns "" for an empty map or an unencodable value (NaN
// doubles and the like) — attribute anomalies never fail a batch.
func attributesJSON(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	return string(data)
}

// valueString flattens a decoded tagged value to the string form used
// for the record body and the captured resource keys. Lists and maps
// render as JSON; raw fallback nodes pass through verbatim.
func valueString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.RawMessage:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// allZeroBytes reports whether b is entirely zero bytes. A zero trace
// or span ID is the protobuf encoding of "absent".
func allZeroBytes(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// allZeroHex reports whether s consists only of '0' characters — the
// JSON mapping's all-zero trace/span ID.
func allZeroHex(s string) bool {
	return strings.Trim(s, "0") == ""
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
