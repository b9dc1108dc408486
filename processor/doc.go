// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package processor ties policy resolution and the handler chain into
// the single entry point of the mediation pipeline.
//
// Process resolves the event's target against the policy store,
// dispatches the event through the handler chain under a bounded time
// budget, and returns the aggregate verdict. A chain that overruns
// the budget fails closed: the kernel boundary needs a decision, and
// denying is the safe one when no decision arrived in time.
//
// The processor holds no per-event state; every Process call is
// independent. Handlers keep their own state where they need it.
package processor
