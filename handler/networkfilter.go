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

const networkPolicyHandlerName = "networkPolicyHandler"

// NetworkPolicyHandler enforces the resolved policy's network
// filtering action on connection events. Domain allow/block lists are
// enforced at the DNS layer, where the domain is actually visible;
// connection events carry only addresses. Handles networkConnection
// only.
type NetworkPolicyHandler struct {
	NopHandler
	logger *slog.Logger
	sink   AuditSink
	now    func() time.Time
}

// NewNetworkPolicyHandler returns a handler applying per-policy
// network actions. sink may be nil to skip audit records for
// monitored connections.
func NewNetworkPolicyHandler(logger *slog.Logger, sink AuditSink) *NetworkPolicyHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NetworkPolicyHandler{logger: logger, sink: sink, now: time.Now}
}

// Name implements Handler.
func (h *NetworkPolicyHandler) Name() string { return networkPolicyHandlerName }

// CanHandle implements Handler.
func (h *NetworkPolicyHandler) CanHandle(category event.Category) bool {
	return category == event.CategoryNetworkConnection
}

// HandleNetwork implements Handler.
func (h *NetworkPolicyHandler) HandleNetwork(ctx context.Context, evt *event.NetworkEvent, pol policy.ProtectionPolicy) event.Verdict {
	switch pol.Network.Action {
	case policy.FilterBlock:
		h.logger.WarnContext(ctx, "connection denied by policy",
			"pid", evt.ProcessID,
			"process", evt.ProcessPath,
			"destination", evt.DestinationIP.String(),
			"destination_port", evt.DestinationPort,
			"policy", pol.Identifier)
		return event.Deny

	case policy.FilterMonitor:
		h.logger.InfoContext(ctx, "connection monitored by policy",
			"pid", evt.ProcessID,
			"process", evt.ProcessPath,
			"destination", evt.DestinationIP.String(),
			"destination_port", evt.DestinationPort,
			"policy", pol.Identifier)
		if h.sink != nil {
			record := audit.NewRecord(h.now(), evt, event.Allow, networkPolicyHandlerName, evt.DestinationIP.String())
			if err := h.sink.Append(record); err != nil {
				h.logger.Error("audit append failed", "error", err)
			}
		}
		return event.Allow

	default:
		return event.Allow
	}
}

var _ Handler = (*NetworkPolicyHandler)(nil)
