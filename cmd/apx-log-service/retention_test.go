// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"testing"
	"time"

	"github.com/apx-tools/apx/lib/applog"
	"github.com/apx-tools/apx/lib/logstore"
)

// waitForCount polls the store until it holds want records or the
// deadline expires. The scheduler runs on its own goroutine, so the
// test observes its effects rather than its steps.
func waitForCount(t *testing.T, service *LogService, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if got := storedCount(t, service); got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("store has %d records, want %d", storedCount(t, service), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetentionImmediatePass(t *testing.T) {
	service, fakeClock := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := service.store.InsertLogs(ctx, []applog.Record{{ObservedNanos: 1000}}); err != nil {
		t.Fatalf("InsertLogs: %v", err)
	}

	// Age the record out before the scheduler starts: the startup pass
	// must delete it without waiting for the first tick.
	fakeClock.Advance(logstore.DefaultRetention + time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		service.runRetention(ctx, time.Hour)
	}()

	waitForCount(t, service, 0)

	cancel()
	<-done
}

func TestRetentionTickerPass(t *testing.T) {
	service, fakeClock := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		service.runRetention(ctx, time.Hour)
	}()

	// The scheduler's ticker is pending once the startup pass finishes.
	fakeClock.WaitForTimers(1)

	if _, err := service.store.InsertLogs(ctx, []applog.Record{{ObservedNanos: 1000}}); err != nil {
		t.Fatalf("InsertLogs: %v", err)
	}
	waitForCount(t, service, 1)

	// One tick inside the retention window deletes nothing.
	fakeClock.Advance(time.Hour)
	waitForCount(t, service, 1)

	// Age the record past the window and fire another tick.
	fakeClock.Advance(logstore.DefaultRetention)
	waitForCount(t, service, 0)

	cancel()
	<-done
}
