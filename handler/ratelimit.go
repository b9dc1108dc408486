// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

const rateLimitingHandlerName = "rateLimitingHandler"

// DefaultMaxExecutionsPerSecond is the rate limit when the constructor
// is given a non-positive limit.
const DefaultMaxExecutionsPerSecond = 10

// RateLimitingHandler denies process executions beyond a per-parent
// budget within a sliding one-second window. A fork bomb or rapid
// respawn loop under one parent is throttled without affecting
// unrelated parents. Handles processExecution only.
type RateLimitingHandler struct {
	NopHandler
	logger *slog.Logger
	limit  int

	mu        sync.Mutex
	windows   map[int32][]time.Time
	lastSweep time.Time
}

// NewRateLimitingHandler returns a limiter allowing up to
// maxExecutionsPerSecond executions per parent process per sliding
// second.
func NewRateLimitingHandler(logger *slog.Logger, maxExecutionsPerSecond int) *RateLimitingHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if maxExecutionsPerSecond <= 0 {
		maxExecutionsPerSecond = DefaultMaxExecutionsPerSecond
	}
	return &RateLimitingHandler{
		logger:  logger,
		limit:   maxExecutionsPerSecond,
		windows: make(map[int32][]time.Time),
	}
}

// Name implements Handler.
func (h *RateLimitingHandler) Name() string { return rateLimitingHandlerName }

// CanHandle implements Handler.
func (h *RateLimitingHandler) CanHandle(category event.Category) bool {
	return category == event.CategoryProcessExecution
}

// HandleProcessExecution implements Handler.
func (h *RateLimitingHandler) HandleProcessExecution(ctx context.Context, evt *event.ProcessExecutionEvent, _ policy.ProtectionPolicy) event.Verdict {
	if h.allowAt(time.Now(), evt.ParentProcessID) {
		return event.Allow
	}
	h.logger.WarnContext(ctx, "execution rate limit exceeded",
		"pid", evt.ProcessID,
		"parent_pid", evt.ParentProcessID,
		"executable", evt.ExecutablePath,
		"limit", h.limit)
	return event.Deny
}

// allowAt decides admission for one execution under parent at the
// given instant. Separated from HandleProcessExecution so the sliding
// window is testable at exact boundaries. Denied executions do not
// consume budget.
func (h *RateLimitingHandler) allowAt(now time.Time, parent int32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-time.Second)
	if now.Sub(h.lastSweep) >= time.Second {
		h.sweepLocked(cutoff)
		h.lastSweep = now
	}
	window := h.windows[parent]

	// Drop entries that slid out of the window. Entries are appended
	// in time order, so the survivors are a suffix.
	keep := 0
	for keep < len(window) && !window[keep].After(cutoff) {
		keep++
	}
	window = window[keep:]

	if len(window) >= h.limit {
		h.windows[parent] = window
		return false
	}
	h.windows[parent] = append(window, now)
	return true
}

// sweepLocked drops parents whose entire window slid past cutoff.
// Without it the map keeps one entry per parent PID ever seen, which
// on a long-running daemon is unbounded. Caller holds the lock.
func (h *RateLimitingHandler) sweepLocked(cutoff time.Time) {
	for parent, window := range h.windows {
		if len(window) == 0 || !window[len(window)-1].After(cutoff) {
			delete(h.windows, parent)
		}
	}
}

var _ Handler = (*RateLimitingHandler)(nil)
