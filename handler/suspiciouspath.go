// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

const suspiciousPathBlockerName = "suspiciousPathBlocker"

// DefaultSuspiciousPaths returns the built-in set of directories from
// which process execution is denied: world-writable scratch
// directories that droppers conventionally stage payloads in.
func DefaultSuspiciousPaths() []string {
	return []string{"/tmp", "/private/tmp", "/var/tmp"}
}

// SuspiciousPathBlocker denies process execution from a configured
// set of directory prefixes. Handles processExecution only.
type SuspiciousPathBlocker struct {
	NopHandler
	logger *slog.Logger
	paths  []string
}

// NewSuspiciousPathBlocker returns a blocker denying execution under
// the given path prefixes. With no paths, DefaultSuspiciousPaths()
// applies. Trailing slashes are trimmed.
func NewSuspiciousPathBlocker(logger *slog.Logger, paths ...string) *SuspiciousPathBlocker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(paths) == 0 {
		paths = DefaultSuspiciousPaths()
	}
	trimmed := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimRight(p, "/"); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return &SuspiciousPathBlocker{logger: logger, paths: trimmed}
}

// Name implements Handler.
func (h *SuspiciousPathBlocker) Name() string { return suspiciousPathBlockerName }

// CanHandle implements Handler.
func (h *SuspiciousPathBlocker) CanHandle(category event.Category) bool {
	return category == event.CategoryProcessExecution
}

// HandleProcessExecution implements Handler. The prefix check is
// segment-aware: "/tmp" matches "/tmp/payload" but not "/tmpfiles".
func (h *SuspiciousPathBlocker) HandleProcessExecution(ctx context.Context, evt *event.ProcessExecutionEvent, _ policy.ProtectionPolicy) event.Verdict {
	for _, prefix := range h.paths {
		if evt.ExecutablePath == prefix || strings.HasPrefix(evt.ExecutablePath, prefix+"/") {
			h.logger.WarnContext(ctx, "execution from suspicious path denied",
				"pid", evt.ProcessID,
				"executable", evt.ExecutablePath,
				"prefix", prefix)
			return event.Deny
		}
	}
	return event.Allow
}

var _ Handler = (*SuspiciousPathBlocker)(nil)
