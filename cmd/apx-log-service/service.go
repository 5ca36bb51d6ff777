// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"

	"github.com/apx-tools/apx/lib/applog"
	"github.com/apx-tools/apx/lib/clock"
	"github.com/apx-tools/apx/lib/logstore"
	"github.com/apx-tools/apx/lib/otlp"
)

// contentTypeProtobuf selects the binary OTLP decoder. Anything else,
// including an absent Content-Type, selects the JSON decoder.
const contentTypeProtobuf = "application/x-protobuf"

// maxBodyBytes bounds a single export request after decompression.
const maxBodyBytes = 64 << 20

// LogService is the HTTP receiver: it dispatches ingest requests to
// the wire decoders and forwards the decoded records to the store.
// Counters are atomics so concurrent request handlers update them
// without a lock.
type LogService struct {
	store  *logstore.Store
	clock  clock.Clock
	logger *slog.Logger

	batchesReceived atomic.Uint64
	recordsReceived atomic.Uint64
	decodeFailures  atomic.Uint64
	storageFailures atomic.Uint64
}

func newLogService(store *logstore.Store, clk clock.Clock, logger *slog.Logger) *LogService {
	return &LogService{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// handleIngest accepts one OTLP export-logs request. An empty decoded
// batch is a success without touching storage; a decode failure is the
// client's fault (400); a storage failure is ours (500).
func (s *LogService) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(r)
	if err != nil {
		s.decodeFailures.Add(1)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := decodeExport(body, r.Header.Get("Content-Type"))
	if err != nil {
		s.decodeFailures.Add(1)
		s.logger.Warn("ingest: decode failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.batchesReceived.Add(1)

	if len(records) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	count, err := s.store.InsertLogs(r.Context(), records)
	if err != nil {
		s.storageFailures.Add(1)
		s.logger.Error("ingest: storage failed", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	s.recordsReceived.Add(uint64(count))
	s.logger.Debug("batch stored", "records", count)

	w.WriteHeader(http.StatusOK)
}

// handleHealth is the liveness probe: 200, no body.
func (s *LogService) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// decodeExport dispatches the payload to the wire decoder named by the
// content type.
func decodeExport(body []byte, contentType string) ([]applog.Record, error) {
	if mediaType(contentType) == contentTypeProtobuf {
		return otlp.ParseProtobuf(body)
	}
	return otlp.ParseJSON(body)
}

// mediaType strips parameters ("; charset=...") and normalizes case.
func mediaType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// readBody reads the request body, transparently decompressing a
// gzip-encoded payload. A corrupt gzip stream is a decode error.
func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body

	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}
