// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the security events mediated by the pipeline
// and the authorization verdicts rendered for them.
//
// Events arrive already decoded from the system extension bridge, one
// value per kernel callback. Each event is consumed synchronously by
// the processor and discarded once a verdict has been returned —
// nothing in this package retains an event beyond a single evaluation
// cycle.
//
// Four categories exist:
//
//	processExecution  — a process is about to exec an image
//	fileAccess        — a process is about to open a file
//	networkConnection — a process is about to establish a connection
//	dnsQuery          — a process is about to resolve a domain
//
// All four are authorization-class: the originating operation is held
// pending the verdict, so everything downstream of an event must stay
// on a bounded-latency path.
package event
