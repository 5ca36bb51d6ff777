// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/apx-tools/apx/lib/clock"
	"github.com/apx-tools/apx/lib/logstore"
)

var serviceTestEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.Default()
}

func newTestService(t *testing.T) (*LogService, *clock.FakeClock) {
	t.Helper()

	fakeClock := clock.Fake(serviceTestEpoch)
	store, err := logstore.Open(logstore.Config{
		Path:   filepath.Join(t.TempDir(), "service_test.db"),
		Clock:  fakeClock,
		Logger: testLogger(t),
	})
	if err != nil {
		t.Fatalf("logstore.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})

	return newLogService(store, fakeClock, testLogger(t)), fakeClock
}

const jsonBatch = `{
	"resourceLogs": [{
		"resource": {
			"attributes": [
				{"key": "service.name", "value": {"stringValue": "api"}},
				{"key": "apx.app_path", "value": {"stringValue": "/home/dev/demo"}}
			]
		},
		"scopeLogs": [{
			"logRecords": [
				{"timeUnixNano": "1000", "severityNumber": 9, "body": {"stringValue": "one"}},
				{"timeUnixNano": "2000", "severityNumber": 13, "body": {"stringValue": "two"}}
			]
		}]
	}]
}`

func postLogs(t *testing.T, service *LogService, contentType string, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	service.handleIngest(recorder, request)
	return recorder
}

func storedCount(t *testing.T, service *LogService) int64 {
	t.Helper()
	stats, err := service.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	return stats.RecordCount
}

func TestIngestJSON(t *testing.T) {
	service, _ := newTestService(t)

	recorder := postLogs(t, service, "application/json", nil, []byte(jsonBatch))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	if got := storedCount(t, service); got != 2 {
		t.Errorf("stored %d records, want 2", got)
	}

	records, err := service.store.QueryLogs(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if records[0].Body != "one" || records[0].ServiceName != "api" {
		t.Errorf("records[0] = %+v", records[0])
	}
}

func TestIngestJSONWithoutContentType(t *testing.T) {
	service, _ := newTestService(t)

	recorder := postLogs(t, service, "", nil, []byte(jsonBatch))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if got := storedCount(t, service); got != 2 {
		t.Errorf("stored %d records, want 2", got)
	}
}

func TestIngestProtobuf(t *testing.T) {
	service, _ := newTestService(t)

	// ExportLogsServiceRequest{resource_logs:{scope_logs:{log_records:{
	// severity_number: 9, body:{string_value:"proto"}}}}}, encoded by hand.
	appendBytes := func(dst []byte, num protowire.Number, payload []byte) []byte {
		dst = protowire.AppendTag(dst, num, protowire.BytesType)
		return protowire.AppendBytes(dst, payload)
	}

	body := protowire.AppendString(protowire.AppendTag(nil, 1, protowire.BytesType), "proto")
	var logRecord []byte
	logRecord = protowire.AppendTag(logRecord, 2, protowire.VarintType)
	logRecord = protowire.AppendVarint(logRecord, 9)
	logRecord = appendBytes(logRecord, 5, body)

	scopeLogs := appendBytes(nil, 2, logRecord)
	resourceLogs := appendBytes(nil, 2, scopeLogs)
	request := appendBytes(nil, 1, resourceLogs)

	recorder := postLogs(t, service, "application/x-protobuf", nil, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}

	records, err := service.store.QueryLogs(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("stored %d records, want 1", len(records))
	}
	if records[0].Body != "proto" || records[0].SeverityNumber != 9 {
		t.Errorf("records[0] = %+v", records[0])
	}
}

func TestIngestProtobufContentTypeWithParams(t *testing.T) {
	service, _ := newTestService(t)

	// A JSON body under a protobuf content type must hit the protobuf
	// decoder and fail, proving the parameter suffix is stripped.
	recorder := postLogs(t, service, "application/x-protobuf; charset=utf-8", nil, []byte(jsonBatch))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestIngestGzip(t *testing.T) {
	service, _ := newTestService(t)

	var compressed bytes.Buffer
	writer := gzip.NewWriter(&compressed)
	if _, err := writer.Write([]byte(jsonBatch)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	recorder := postLogs(t, service, "application/json",
		map[string]string{"Content-Encoding": "gzip"}, compressed.Bytes())
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	if got := storedCount(t, service); got != 2 {
		t.Errorf("stored %d records, want 2", got)
	}
}

func TestIngestCorruptGzip(t *testing.T) {
	service, _ := newTestService(t)

	recorder := postLogs(t, service, "application/json",
		map[string]string{"Content-Encoding": "gzip"}, []byte("not gzip"))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestIngestMalformedJSON(t *testing.T) {
	service, _ := newTestService(t)

	recorder := postLogs(t, service, "application/json", nil, []byte(`{"resourceLogs": [`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if got := storedCount(t, service); got != 0 {
		t.Errorf("stored %d records from malformed batch, want 0", got)
	}
	if got := service.decodeFailures.Load(); got != 1 {
		t.Errorf("decodeFailures = %d, want 1", got)
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	service, _ := newTestService(t)

	recorder := postLogs(t, service, "application/json", nil, []byte(`{}`))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if got := storedCount(t, service); got != 0 {
		t.Errorf("stored %d records from empty batch, want 0", got)
	}
	if got := service.batchesReceived.Load(); got != 1 {
		t.Errorf("batchesReceived = %d, want 1", got)
	}
}

func TestIngestRejectsGet(t *testing.T) {
	service, _ := newTestService(t)

	request := httptest.NewRequest(http.MethodGet, "/v1/logs", nil)
	recorder := httptest.NewRecorder()
	service.handleIngest(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
}

func TestIngestCounters(t *testing.T) {
	service, _ := newTestService(t)

	postLogs(t, service, "application/json", nil, []byte(jsonBatch))
	postLogs(t, service, "application/json", nil, []byte(jsonBatch))

	if got := service.batchesReceived.Load(); got != 2 {
		t.Errorf("batchesReceived = %d, want 2", got)
	}
	if got := service.recordsReceived.Load(); got != 4 {
		t.Errorf("recordsReceived = %d, want 4", got)
	}
}

func TestHealth(t *testing.T) {
	service, _ := newTestService(t)

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	service.handleHealth(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if body := strings.TrimSpace(recorder.Body.String()); body != "" {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestHealthRejectsPost(t *testing.T) {
	service, _ := newTestService(t)

	request := httptest.NewRequest(http.MethodPost, "/health", nil)
	recorder := httptest.NewRecorder()
	service.handleHealth(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
}
