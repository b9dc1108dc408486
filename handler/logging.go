// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/privarion/privarion/audit"
	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

// AuditSink receives audit records produced by handlers. *audit.Log
// implements it.
type AuditSink interface {
	Append(record audit.Record) error
}

const loggingHandlerName = "loggingHandler"

// LoggingHandler observes every event category, records an audit
// entry, and always allows. It performs no semantic filtering; it
// exists so that the audit trail covers every mediated event even
// when no filtering handler is capable of its category.
type LoggingHandler struct {
	logger *slog.Logger
	sink   AuditSink
	now    func() time.Time
}

// NewLoggingHandler returns a logging handler writing structured logs
// to logger and audit records to sink. Either may be nil to disable
// that output.
func NewLoggingHandler(logger *slog.Logger, sink AuditSink) *LoggingHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LoggingHandler{logger: logger, sink: sink, now: time.Now}
}

// Name implements Handler.
func (h *LoggingHandler) Name() string { return loggingHandlerName }

// CanHandle implements Handler. The logging handler covers every
// category.
func (h *LoggingHandler) CanHandle(event.Category) bool { return true }

// HandleProcessExecution implements Handler.
func (h *LoggingHandler) HandleProcessExecution(ctx context.Context, evt *event.ProcessExecutionEvent, pol policy.ProtectionPolicy) event.Verdict {
	h.logger.InfoContext(ctx, "process execution observed",
		"pid", evt.ProcessID,
		"parent_pid", evt.ParentProcessID,
		"executable", evt.ExecutablePath,
		"policy", pol.Identifier)
	h.record(evt, "")
	return event.Allow
}

// HandleFileAccess implements Handler.
func (h *LoggingHandler) HandleFileAccess(ctx context.Context, evt *event.FileAccessEvent, pol policy.ProtectionPolicy) event.Verdict {
	h.logger.InfoContext(ctx, "file access observed",
		"pid", evt.ProcessID,
		"path", evt.FilePath,
		"access", evt.Access.String(),
		"policy", pol.Identifier)
	h.record(evt, evt.Access.String())
	return event.Allow
}

// HandleNetwork implements Handler.
func (h *LoggingHandler) HandleNetwork(ctx context.Context, evt *event.NetworkEvent, pol policy.ProtectionPolicy) event.Verdict {
	destination := evt.DestinationIP.String()
	h.logger.InfoContext(ctx, "network connection observed",
		"pid", evt.ProcessID,
		"process", evt.ProcessPath,
		"destination", destination,
		"destination_port", evt.DestinationPort,
		"protocol", evt.Proto.String(),
		"policy", pol.Identifier)
	h.record(evt, destination)
	return event.Allow
}

// HandleDNSQuery implements Handler.
func (h *LoggingHandler) HandleDNSQuery(ctx context.Context, evt *event.DNSQueryEvent, pol policy.ProtectionPolicy) event.Verdict {
	h.logger.InfoContext(ctx, "dns query observed",
		"pid", evt.ProcessID,
		"process", evt.ProcessPath,
		"domain", evt.Domain,
		"query_type", evt.QueryType,
		"policy", pol.Identifier)
	h.record(evt, evt.Domain)
	return event.Allow
}

func (h *LoggingHandler) record(evt event.Event, detail string) {
	if h.sink == nil {
		return
	}
	record := audit.NewRecord(h.now(), evt, event.Allow, loggingHandlerName, detail)
	if err := h.sink.Append(record); err != nil {
		h.logger.Error("audit append failed", "error", err)
	}
}

var _ Handler = (*LoggingHandler)(nil)
