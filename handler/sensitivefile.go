// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/privarion/privarion/audit"
	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

const sensitiveFileMonitorName = "sensitiveFileAccessMonitor"

// DefaultSensitivePatterns returns the built-in patterns matched
// against accessed file paths: private key material, password stores,
// and credential files.
func DefaultSensitivePatterns() []string {
	return []string{
		"id_rsa",
		"id_ed25519",
		"id_ecdsa",
		".ssh/",
		"passwd",
		"password",
		"credential",
		"secret",
		"keychain",
		"wallet",
	}
}

// SensitiveFileAccessMonitor detects access to sensitive files and
// records each match. It is detection-only: a match is logged and
// audited but the access is still allowed. Handles fileAccess only.
type SensitiveFileAccessMonitor struct {
	NopHandler
	logger   *slog.Logger
	sink     AuditSink
	patterns []string
	now      func() time.Time
}

// NewSensitiveFileAccessMonitor returns a monitor matching the given
// patterns case-insensitively as substrings of the accessed path.
// With no patterns, DefaultSensitivePatterns() applies. sink may be
// nil to skip audit records for matches.
func NewSensitiveFileAccessMonitor(logger *slog.Logger, sink AuditSink, patterns ...string) *SensitiveFileAccessMonitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(patterns) == 0 {
		patterns = DefaultSensitivePatterns()
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &SensitiveFileAccessMonitor{logger: logger, sink: sink, patterns: lowered, now: time.Now}
}

// Name implements Handler.
func (h *SensitiveFileAccessMonitor) Name() string { return sensitiveFileMonitorName }

// CanHandle implements Handler.
func (h *SensitiveFileAccessMonitor) CanHandle(category event.Category) bool {
	return category == event.CategoryFileAccess
}

// HandleFileAccess implements Handler. Always allows; the value is in
// the side effect.
func (h *SensitiveFileAccessMonitor) HandleFileAccess(ctx context.Context, evt *event.FileAccessEvent, _ policy.ProtectionPolicy) event.Verdict {
	lowered := strings.ToLower(evt.FilePath)
	for _, pattern := range h.patterns {
		if !strings.Contains(lowered, pattern) {
			continue
		}
		h.logger.WarnContext(ctx, "sensitive file access detected",
			"pid", evt.ProcessID,
			"path", evt.FilePath,
			"access", evt.Access.String(),
			"pattern", pattern)
		if h.sink != nil {
			record := audit.NewRecord(h.now(), evt, event.Allow, sensitiveFileMonitorName, pattern)
			if err := h.sink.Append(record); err != nil {
				h.logger.Error("audit append failed", "error", err)
			}
		}
		break
	}
	return event.Allow
}

var _ Handler = (*SensitiveFileAccessMonitor)(nil)
