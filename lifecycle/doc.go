// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle manages the subscription to the kernel event
// source: a small state machine that initializes the client, opens
// the event subscription, mediates incoming events, and tears the
// subscription down.
//
// Every transition is idempotent — re-initializing an initialized
// client or unsubscribing twice is a no-op, not an error — because
// lifecycle calls arrive from UI actions, signal handlers, and crash
// recovery paths that cannot coordinate with each other.
//
// Failures use a shared error taxonomy (Error with a Kind) that spans
// both this package's transitions and platform-level conditions such
// as missing entitlements, so callers switch on one enum regardless
// of where in the stack the failure originated.
package lifecycle
