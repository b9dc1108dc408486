// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"testing"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/policy"
)

// scriptedHandler renders a fixed verdict for a set of categories and
// records the order it was consulted in.
type scriptedHandler struct {
	NopHandler
	name       string
	categories map[event.Category]bool
	verdict    event.Verdict
	trace      *[]string
}

func (h *scriptedHandler) Name() string { return h.name }

func (h *scriptedHandler) CanHandle(category event.Category) bool {
	return h.categories[category]
}

func (h *scriptedHandler) consulted() event.Verdict {
	if h.trace != nil {
		*h.trace = append(*h.trace, h.name)
	}
	return h.verdict
}

func (h *scriptedHandler) HandleProcessExecution(context.Context, *event.ProcessExecutionEvent, policy.ProtectionPolicy) event.Verdict {
	return h.consulted()
}

func (h *scriptedHandler) HandleFileAccess(context.Context, *event.FileAccessEvent, policy.ProtectionPolicy) event.Verdict {
	return h.consulted()
}

func execEvent(path string) *event.ProcessExecutionEvent {
	return &event.ProcessExecutionEvent{
		ProcessID:       501,
		ExecutablePath:  path,
		ParentProcessID: 1,
	}
}

func TestChainDenyDominant(t *testing.T) {
	chain := NewChain(
		NewLoggingHandler(nil, nil),
		NewSuspiciousPathBlocker(nil),
	)

	if got := chain.Dispatch(context.Background(), execEvent("/tmp/malicious"), policy.Default()); got != event.Deny {
		t.Errorf("verdict for /tmp/malicious = %v, want deny", got)
	}
	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/ls"), policy.Default()); got != event.Allow {
		t.Errorf("verdict for /usr/bin/ls = %v, want allow", got)
	}
}

func TestChainRegistrationOrder(t *testing.T) {
	var trace []string
	exec := map[event.Category]bool{event.CategoryProcessExecution: true}

	chain := NewChain(
		&scriptedHandler{name: "first", categories: exec, verdict: event.Allow, trace: &trace},
		&scriptedHandler{name: "second", categories: exec, verdict: event.Allow, trace: &trace},
		&scriptedHandler{name: "third", categories: exec, verdict: event.Allow, trace: &trace},
	)

	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/true"), policy.Default()); got != event.Allow {
		t.Fatalf("verdict = %v, want allow", got)
	}
	if len(trace) != 3 || trace[0] != "first" || trace[1] != "second" || trace[2] != "third" {
		t.Errorf("consultation order = %v, want [first second third]", trace)
	}
}

func TestChainDenyShortCircuits(t *testing.T) {
	var trace []string
	exec := map[event.Category]bool{event.CategoryProcessExecution: true}

	chain := NewChain(
		&scriptedHandler{name: "observer", categories: exec, verdict: event.Allow, trace: &trace},
		&scriptedHandler{name: "blocker", categories: exec, verdict: event.Deny, trace: &trace},
		&scriptedHandler{name: "never", categories: exec, verdict: event.Allow, trace: &trace},
	)

	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/true"), policy.Default()); got != event.Deny {
		t.Fatalf("verdict = %v, want deny", got)
	}
	if len(trace) != 2 || trace[1] != "blocker" {
		t.Errorf("consultation trace = %v, want [observer blocker]", trace)
	}
}

func TestChainSkipsIncapableHandlers(t *testing.T) {
	var trace []string
	fileOnly := map[event.Category]bool{event.CategoryFileAccess: true}

	// A denying handler that cannot handle the category must not
	// affect the verdict.
	chain := NewChain(
		&scriptedHandler{name: "fileBlocker", categories: fileOnly, verdict: event.Deny, trace: &trace},
	)

	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/true"), policy.Default()); got != event.Allow {
		t.Errorf("verdict = %v, want allow (handler cannot handle processExecution)", got)
	}
	if len(trace) != 0 {
		t.Errorf("incapable handler was consulted: %v", trace)
	}
}

func TestChainNoCapableHandlersAllows(t *testing.T) {
	chain := NewChain()
	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/true"), policy.Default()); got != event.Allow {
		t.Errorf("empty chain verdict = %v, want allow", got)
	}
}

func TestChainAllowWithModification(t *testing.T) {
	exec := map[event.Category]bool{event.CategoryProcessExecution: true}

	chain := NewChain(
		&scriptedHandler{name: "plain", categories: exec, verdict: event.Allow},
		&scriptedHandler{name: "rewriter", categories: exec, verdict: event.AllowWithModification},
	)
	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/true"), policy.Default()); got != event.AllowWithModification {
		t.Errorf("verdict = %v, want allowWithModification", got)
	}

	// Deny still dominates a modification.
	chain.Register(&scriptedHandler{name: "blocker", categories: exec, verdict: event.Deny})
	if got := chain.Dispatch(context.Background(), execEvent("/usr/bin/true"), policy.Default()); got != event.Deny {
		t.Errorf("verdict with blocker = %v, want deny", got)
	}
}

func TestChainRegisterDuringDispatchTakesEffectNext(t *testing.T) {
	chain := NewChain(NewLoggingHandler(nil, nil))
	before := chain.Len()

	chain.Register(NewSuspiciousPathBlocker(nil))
	if chain.Len() != before+1 {
		t.Fatalf("Len = %d after Register, want %d", chain.Len(), before+1)
	}
	if got := chain.Dispatch(context.Background(), execEvent("/tmp/dropper"), policy.Default()); got != event.Deny {
		t.Errorf("verdict after registration = %v, want deny", got)
	}
}
