// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package otlp

import (
	"encoding/hex"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/apx-tools/apx/lib/applog"
)

// Field numbers from the OTLP protobuf schema
// (opentelemetry/proto/logs/v1/logs.proto and common/v1/common.proto).
const (
	// ExportLogsServiceRequest
	fieldResourceLogs = 1

	// ResourceLogs
	fieldResource  = 1
	fieldScopeLogs = 2

	// Resource / KeyValueList / InstrumentationScope share field 1 for
	// their repeated KeyValue attributes.
	fieldAttributes = 1

	// ScopeLogs
	fieldLogRecords = 2

	// LogRecord
	fieldTimeUnixNano         = 1
	fieldSeverityNumber       = 2
	fieldSeverityText         = 3
	fieldBody                 = 5
	fieldLogAttributes        = 6
	fieldTraceID              = 9
	fieldSpanID               = 10
	fieldObservedTimeUnixNano = 11

	// KeyValue
	fieldKey   = 1
	fieldValue = 2

	// AnyValue oneof
	fieldStringValue = 1
	fieldBoolValue   = 2
	fieldIntValue    = 3
	fieldDoubleValue = 4
	fieldArrayValue  = 5
	fieldKvlistValue = 6
	fieldBytesValue  = 7

	// ArrayValue
	fieldArrayValues = 1
)

// ParseProtobuf decodes the protobuf encoding of an OTLP export-logs
// request. Invalid wire framing anywhere in the message fails the
// call; an envelope without resources, scopes, or records yields zero
// records and no error.
func ParseProtobuf(data []byte) ([]applog.Record, error) {
	var records []applog.Record
	err := walkMessage(data, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
		if num == fieldResourceLogs && typ == protowire.BytesType {
			resourceRecords, err := parseProtoResourceLogs(payload)
			if err != nil {
				return err
			}
			records = append(records, resourceRecords...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("otlp: malformed export request: %w", err)
	}
	return records, nil
}

// walkMessage iterates the fields of one encoded message, consuming
// each value and passing it to visit. Length-delimited fields arrive
// as payload; varint and fixed fields arrive as scalar. Unknown wire
// types are skipped. Returns the first framing error encountered.
func walkMessage(buf []byte, visit func(num protowire.Number, typ protowire.Type, payload []byte, scalar uint64) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		buf = buf[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
			if err := visit(num, typ, nil, v); err != nil {
				return err
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
			if err := visit(num, typ, nil, uint64(v)); err != nil {
				return err
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
			if err := visit(num, typ, nil, v); err != nil {
				return err
			}
		case protowire.BytesType:
			p, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
			if err := visit(num, typ, p, 0); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
		}
	}
	return nil
}

// parseProtoResourceLogs decodes one ResourceLogs message. The
// resource is decoded before any log records regardless of wire-level
// field order, because its captured values attach to every record.
func parseProtoResourceLogs(buf []byte) ([]applog.Record, error) {
	var resourcePayload []byte
	var scopePayloads [][]byte

	err := walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldResource:
			resourcePayload = payload
		case fieldScopeLogs:
			scopePayloads = append(scopePayloads, payload)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var resourceAttrs, serviceName, appPath string
	if resourcePayload != nil {
		resourceAttrs, serviceName, appPath, err = parseProtoResource(resourcePayload)
		if err != nil {
			return nil, err
		}
	}

	var records []applog.Record
	for _, scopePayload := range scopePayloads {
		err := walkMessage(scopePayload, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
			if num == fieldLogRecords && typ == protowire.BytesType {
				record, err := parseProtoLogRecord(payload, resourceAttrs, serviceName, appPath)
				if err != nil {
					return err
				}
				records = append(records, record)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

// parseProtoResource collects the resource attributes into a JSON blob
// and captures service.name and apx.app_path. The scan overwrites on
// every string match, so the last occurrence of a duplicated key wins.
func parseProtoResource(buf []byte) (attrsJSON, serviceName, appPath string, err error) {
	attrs := make(map[string]any)

	err = walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
		if num != fieldAttributes || typ != protowire.BytesType {
			return nil
		}
		key, value, err := parseProtoKeyValue(payload)
		if err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		attrs[key] = value

		if text, ok := value.(string); ok {
			switch key {
			case serviceNameKey:
				serviceName = text
			case appPathKey:
				appPath = text
			}
		}
		return nil
	})
	if err != nil {
		return "", "", "", err
	}
	return attributesJSON(attrs), serviceName, appPath, nil
}

// parseProtoLogRecord normalizes one LogRecord message.
func parseProtoLogRecord(buf []byte, resourceAttrs, serviceName, appPath string) (applog.Record, error) {
	record := applog.Record{
		ServiceName:        serviceName,
		AppPath:            appPath,
		ResourceAttributes: resourceAttrs,
	}
	attrs := make(map[string]any)

	err := walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, scalar uint64) error {
		switch {
		case num == fieldTimeUnixNano && typ == protowire.Fixed64Type:
			record.TimestampNanos = int64(scalar)
		case num == fieldObservedTimeUnixNano && typ == protowire.Fixed64Type:
			record.ObservedNanos = int64(scalar)
		case num == fieldSeverityNumber && typ == protowire.VarintType:
			record.SeverityNumber = int32(scalar)
		case num == fieldSeverityText && typ == protowire.BytesType:
			record.SeverityText = string(payload)
		case num == fieldBody && typ == protowire.BytesType:
			value, err := parseProtoAnyValue(payload)
			if err != nil {
				return err
			}
			record.Body = valueString(value)
		case num == fieldLogAttributes && typ == protowire.BytesType:
			key, value, err := parseProtoKeyValue(payload)
			if err != nil {
				return err
			}
			if key != "" {
				attrs[key] = value
			}
		case num == fieldTraceID && typ == protowire.BytesType:
			if len(payload) > 0 && !allZeroBytes(payload) {
				record.TraceID = hex.EncodeToString(payload)
			}
		case num == fieldSpanID && typ == protowire.BytesType:
			if len(payload) > 0 && !allZeroBytes(payload) {
				record.SpanID = hex.EncodeToString(payload)
			}
		}
		return nil
	})
	if err != nil {
		return applog.Record{}, err
	}

	record.ObservedNanos = maxInt64(record.ObservedNanos, record.TimestampNanos)
	record.LogAttributes = attributesJSON(attrs)
	return record, nil
}

// parseProtoKeyValue decodes one KeyValue message.
func parseProtoKeyValue(buf []byte) (key string, value any, err error) {
	err = walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case fieldKey:
			key = string(payload)
		case fieldValue:
			decoded, err := parseProtoAnyValue(payload)
			if err != nil {
				return err
			}
			value = decoded
		}
		return nil
	})
	return key, value, err
}

// parseProtoAnyValue decodes an AnyValue message recursively. Byte
// strings decode to their hex encoding; lists and key/value maps
// decode element by element. An AnyValue with no populated field
// decodes to nil. When several oneof fields appear, the last one wins,
// matching proto3 merge semantics.
func parseProtoAnyValue(buf []byte) (any, error) {
	var value any

	err := walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, scalar uint64) error {
		switch {
		case num == fieldStringValue && typ == protowire.BytesType:
			value = string(payload)
		case num == fieldBoolValue && typ == protowire.VarintType:
			value = scalar != 0
		case num == fieldIntValue && typ == protowire.VarintType:
			value = int64(scalar)
		case num == fieldDoubleValue && typ == protowire.Fixed64Type:
			value = math.Float64frombits(scalar)
		case num == fieldArrayValue && typ == protowire.BytesType:
			list, err := parseProtoArrayValue(payload)
			if err != nil {
				return err
			}
			value = list
		case num == fieldKvlistValue && typ == protowire.BytesType:
			kvMap, err := parseProtoKeyValueList(payload)
			if err != nil {
				return err
			}
			value = kvMap
		case num == fieldBytesValue && typ == protowire.BytesType:
			value = hex.EncodeToString(payload)
		}
		return nil
	})
	return value, err
}

// parseProtoArrayValue decodes an ArrayValue into an ordered slice.
func parseProtoArrayValue(buf []byte) ([]any, error) {
	list := []any{}
	err := walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
		if num == fieldArrayValues && typ == protowire.BytesType {
			element, err := parseProtoAnyValue(payload)
			if err != nil {
				return err
			}
			list = append(list, element)
		}
		return nil
	})
	return list, err
}

// parseProtoKeyValueList decodes a KeyValueList into a map.
func parseProtoKeyValueList(buf []byte) (map[string]any, error) {
	kvMap := map[string]any{}
	err := walkMessage(buf, func(num protowire.Number, typ protowire.Type, payload []byte, _ uint64) error {
		if num == fieldAttributes && typ == protowire.BytesType {
			key, value, err := parseProtoKeyValue(payload)
			if err != nil {
				return err
			}
			if key != "" {
				kvMap[key] = value
			}
		}
		return nil
	})
	return kvMap, err
}
