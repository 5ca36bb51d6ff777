// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"time"
)

// runRetention is the background retention scheduler. It runs one
// cleanup pass immediately, then one per interval until ctx is
// cancelled. A failed pass is logged and the loop waits for the next
// interval boundary; it never reschedules early and never stops.
func (s *LogService) runRetention(ctx context.Context, interval time.Duration) {
	s.cleanupPass(ctx)

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupPass(ctx)
		}
	}
}

func (s *LogService) cleanupPass(ctx context.Context) {
	deleted, err := s.store.CleanupOldLogs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("retention pass failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("retention pass complete", "deleted", deleted)
	}
}
