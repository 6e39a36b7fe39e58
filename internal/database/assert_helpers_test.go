// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package database

import (
	"errors"
	"testing"
	"time"
)

// Shared assertion helpers for the database tests. Each takes the value
// under test plus a short name used in the failure message.

func checkNoError(t *testing.T, err error, context string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", context, err)
	}
}

func checkError(t *testing.T, err error, context string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error, got nil", context)
	}
}

func checkErrorIs(t *testing.T, err, target error, context string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("%s: expected error %v, got %v", context, target, err)
	}
}

func checkStringEqual(t *testing.T, got, want, name string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", name, got, want)
	}
}

func checkStringNotEmpty(t *testing.T, got, name string) {
	t.Helper()
	if got == "" {
		t.Errorf("%s: expected non-empty string", name)
	}
}

func checkIntEqual(t *testing.T, got, want int, name string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %d, want %d", name, got, want)
	}
}

func checkInt64Equal(t *testing.T, got, want int64, name string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %d, want %d", name, got, want)
	}
}

func checkIntPositive(t *testing.T, got int, name string) {
	t.Helper()
	if got <= 0 {
		t.Errorf("%s: expected positive value, got %d", name, got)
	}
}

func checkIntNonNegative(t *testing.T, got int, name string) {
	t.Helper()
	if got < 0 {
		t.Errorf("%s: expected non-negative value, got %d", name, got)
	}
}

func checkIntInRange(t *testing.T, got, min, max int, name string) {
	t.Helper()
	if got < min || got > max {
		t.Errorf("%s: got %d, want value in [%d, %d]", name, got, min, max)
	}
}

func checkSliceEmpty[T any](t *testing.T, slice []T, name string) {
	t.Helper()
	if slice == nil {
		t.Errorf("%s: expected empty slice, got nil", name)
		return
	}
	if len(slice) != 0 {
		t.Errorf("%s: expected empty slice, got %d elements", name, len(slice))
	}
}

func checkSliceNotEmpty[T any](t *testing.T, slice []T, name string) {
	t.Helper()
	if len(slice) == 0 {
		t.Fatalf("%s: expected non-empty slice", name)
	}
}

func checkSliceLen[T any](t *testing.T, slice []T, want int, name string) {
	t.Helper()
	if len(slice) != want {
		t.Fatalf("%s: got %d elements, want %d", name, len(slice), want)
	}
}

func checkSliceMaxLen[T any](t *testing.T, slice []T, max int, name string) {
	t.Helper()
	if len(slice) > max {
		t.Errorf("%s: got %d elements, want at most %d", name, len(slice), max)
	}
}

func checkSortedDescending(t *testing.T, times []time.Time, name string) {
	t.Helper()
	for i := 1; i < len(times); i++ {
		if times[i].After(times[i-1]) {
			t.Errorf("%s: not sorted descending at index %d: %v after %v",
				name, i, times[i], times[i-1])
		}
	}
}

func checkUniqueStrings(t *testing.T, values []string, name string) {
	t.Helper()
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			t.Errorf("%s: duplicate value %q", name, v)
		}
		seen[v] = true
	}
}
