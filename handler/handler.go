// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"sync"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

// Handler renders verdicts for the event categories it declares via
// CanHandle. Methods for undeclared categories are never invoked by
// the Chain. Handlers must be safe for concurrent use: the processor
// mediates events from multiple kernel threads.
type Handler interface {
	// Name identifies the handler in logs and audit records.
	Name() string

	// CanHandle reports whether this handler renders verdicts for the
	// category. The Chain skips handlers that return false; a skipped
	// handler does not count toward aggregation.
	CanHandle(category event.Category) bool

	// HandleProcessExecution renders a verdict for an exec event under
	// the resolved policy.
	HandleProcessExecution(ctx context.Context, evt *event.ProcessExecutionEvent, pol policy.ProtectionPolicy) event.Verdict

	// HandleFileAccess renders a verdict for a file open event.
	HandleFileAccess(ctx context.Context, evt *event.FileAccessEvent, pol policy.ProtectionPolicy) event.Verdict

	// HandleNetwork renders a verdict for a connection event.
	HandleNetwork(ctx context.Context, evt *event.NetworkEvent, pol policy.ProtectionPolicy) event.Verdict

	// HandleDNSQuery renders a verdict for a DNS resolution event.
	HandleDNSQuery(ctx context.Context, evt *event.DNSQueryEvent, pol policy.ProtectionPolicy) event.Verdict
}

// NopHandler is a base for handlers that cover a subset of categories:
// it declares no capability and allows everything. Embed it and
// override CanHandle plus the methods for the categories you cover.
type NopHandler struct{}

// CanHandle implements Handler. It reports no capability.
func (NopHandler) CanHandle(event.Category) bool { return false }

// HandleProcessExecution implements Handler.
func (NopHandler) HandleProcessExecution(context.Context, *event.ProcessExecutionEvent, policy.ProtectionPolicy) event.Verdict {
	return event.Allow
}

// HandleFileAccess implements Handler.
func (NopHandler) HandleFileAccess(context.Context, *event.FileAccessEvent, policy.ProtectionPolicy) event.Verdict {
	return event.Allow
}

// HandleNetwork implements Handler.
func (NopHandler) HandleNetwork(context.Context, *event.NetworkEvent, policy.ProtectionPolicy) event.Verdict {
	return event.Allow
}

// HandleDNSQuery implements Handler.
func (NopHandler) HandleDNSQuery(context.Context, *event.DNSQueryEvent, policy.ProtectionPolicy) event.Verdict {
	return event.Allow
}

// Chain is an ordered collection of handlers with deny-dominant
// aggregation. Registration may happen at any time, including while
// events are being dispatched; a registration takes effect for
// subsequently dispatched events.
type Chain struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewChain returns a chain with the given handlers registered in
// order.
func NewChain(handlers ...Handler) *Chain {
	chain := &Chain{}
	for _, h := range handlers {
		chain.Register(h)
	}
	return chain
}

// Register appends a handler to the chain. Nil handlers are ignored.
func (c *Chain) Register(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Len returns the number of registered handlers.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// snapshot returns the current handler list. Dispatch iterates over
// the snapshot so a concurrent Register cannot tear an in-flight
// dispatch.
func (c *Chain) snapshot() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[:len(c.handlers):len(c.handlers)]
}

// Dispatch consults every capable handler in registration order and
// aggregates their verdicts. Any deny makes the aggregate deny and
// short-circuits the rest of the chain (the aggregate cannot recover
// to allow). With no denies, the aggregate is allowWithModification
// if any handler asked for it, otherwise allow. An event for which no
// handler declares capability is allowed: the policy decision already
// happened in resolution, and absence of a veto is not an error.
func (c *Chain) Dispatch(ctx context.Context, evt event.Event, pol policy.ProtectionPolicy) event.Verdict {
	modified := false
	for _, h := range c.snapshot() {
		if !h.CanHandle(evt.Category()) {
			continue
		}
		verdict := invoke(ctx, h, evt, pol)
		switch verdict {
		case event.Deny:
			return event.Deny
		case event.AllowWithModification:
			modified = true
		}
	}
	if modified {
		return event.AllowWithModification
	}
	return event.Allow
}

// invoke calls the handler method matching the event's concrete type.
// An unknown event type fails closed.
func invoke(ctx context.Context, h Handler, evt event.Event, pol policy.ProtectionPolicy) event.Verdict {
	switch typed := evt.(type) {
	case *event.ProcessExecutionEvent:
		return h.HandleProcessExecution(ctx, typed, pol)
	case *event.FileAccessEvent:
		return h.HandleFileAccess(ctx, typed, pol)
	case *event.NetworkEvent:
		return h.HandleNetwork(ctx, typed, pol)
	case *event.DNSQueryEvent:
		return h.HandleDNSQuery(ctx, typed, pol)
	default:
		return event.Deny
	}
}
