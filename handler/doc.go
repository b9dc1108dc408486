// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler defines the pluggable event handler interface and
// the deny-dominant chain that composes handlers into a single
// verdict.
//
// A handler declares which event categories it can render a verdict
// for and implements one method per category. The Chain consults
// handlers in registration order, skips those that cannot handle the
// event's category, and aggregates: any deny makes the aggregate deny,
// regardless of what other handlers said. Side effects (logging, audit
// records, rate counter updates) happen in registration order.
//
// The built-in handlers mirror the mediation policy surface: audit
// logging, suspicious execution path blocking, sensitive file access
// detection, per-parent execution rate limiting, and policy-driven
// network and DNS filtering.
package handler
