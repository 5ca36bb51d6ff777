// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package applog

import "testing"

func TestSeverityName(t *testing.T) {
	cases := []struct {
		number int32
		want   string
	}{
		{1, "TRACE"},
		{4, "TRACE"},
		{5, "DEBUG"},
		{8, "DEBUG"},
		{9, "INFO"},
		{12, "INFO"},
		{13, "WARN"},
		{16, "WARN"},
		{17, "ERROR"},
		{20, "ERROR"},
		{21, "FATAL"},
		{24, "FATAL"},
		{0, "SEV0"},
		{25, "SEV25"},
		{-3, "SEV-3"},
	}
	for _, c := range cases {
		if got := SeverityName(c.number); got != c.want {
			t.Errorf("SeverityName(%d) = %q, want %q", c.number, got, c.want)
		}
	}
}

func TestEffectiveTimestamp(t *testing.T) {
	withTimestamp := Record{TimestampNanos: 100, ObservedNanos: 200}
	if got := withTimestamp.EffectiveTimestamp(); got != 100 {
		t.Errorf("EffectiveTimestamp = %d, want 100 (producer timestamp)", got)
	}

	observedOnly := Record{ObservedNanos: 200}
	if got := observedOnly.EffectiveTimestamp(); got != 200 {
		t.Errorf("EffectiveTimestamp = %d, want 200 (observed fallback)", got)
	}
}
