// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"testing"
	"time"
)

func TestRateLimitBoundary(t *testing.T) {
	limiter := NewRateLimitingHandler(nil, 5)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Ten executions under one parent inside one second: exactly the
	// first five are admitted.
	for i := 0; i < 10; i++ {
		at := base.Add(time.Duration(i) * 50 * time.Millisecond)
		got := limiter.allowAt(at, 1)
		want := i < 5
		if got != want {
			t.Errorf("execution %d at +%dms: allowed=%v, want %v", i, i*50, got, want)
		}
	}
}

func TestRateLimitIndependentParents(t *testing.T) {
	limiter := NewRateLimitingHandler(nil, 5)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 10 * time.Millisecond)
		if !limiter.allowAt(at, 1) {
			t.Errorf("parent 1 execution %d denied within limit", i)
		}
		if !limiter.allowAt(at, 2) {
			t.Errorf("parent 2 execution %d denied within limit", i)
		}
	}
}

func TestRateLimitWindowSlides(t *testing.T) {
	limiter := NewRateLimitingHandler(nil, 2)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if !limiter.allowAt(base, 7) {
		t.Fatal("first execution denied")
	}
	if !limiter.allowAt(base.Add(100*time.Millisecond), 7) {
		t.Fatal("second execution denied")
	}
	if limiter.allowAt(base.Add(200*time.Millisecond), 7) {
		t.Fatal("third execution allowed inside a full window")
	}

	// Once the first admission slides past one second, budget frees
	// up.
	if !limiter.allowAt(base.Add(1001*time.Millisecond), 7) {
		t.Error("execution denied after the window slid")
	}
}

func TestRateLimitDeniedDoesNotConsumeBudget(t *testing.T) {
	limiter := NewRateLimitingHandler(nil, 1)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if !limiter.allowAt(base, 3) {
		t.Fatal("first execution denied")
	}
	for i := 1; i <= 20; i++ {
		if limiter.allowAt(base.Add(time.Duration(i)*10*time.Millisecond), 3) {
			t.Fatalf("execution %d allowed inside a full window", i)
		}
	}
	// The only admitted entry is the first; one second after it the
	// window is clear even though 20 denied attempts happened since.
	if !limiter.allowAt(base.Add(1001*time.Millisecond), 3) {
		t.Error("execution denied after window expiry; denied attempts consumed budget")
	}
}

func TestRateLimitForgetsIdleParents(t *testing.T) {
	limiter := NewRateLimitingHandler(nil, 5)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for parent := int32(1); parent <= 3; parent++ {
		if !limiter.allowAt(base, parent) {
			t.Fatalf("first execution under parent %d denied", parent)
		}
	}

	// A window later the stale parents must be gone from the map, not
	// merely holding empty slices; otherwise the limiter grows one
	// entry per parent PID ever seen.
	if !limiter.allowAt(base.Add(2*time.Second), 99) {
		t.Fatal("execution under fresh parent denied")
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.windows) != 1 {
		t.Errorf("limiter tracks %d parents, want 1", len(limiter.windows))
	}
	if _, ok := limiter.windows[99]; !ok {
		t.Error("fresh parent missing from tracked windows")
	}
}
