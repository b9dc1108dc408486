// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge connects the mediation pipeline to the kernel event
// bridge over a Unix domain socket.
//
// The bridge speaks self-delimiting CBOR frames: one subscribe frame
// from the client, one acknowledgment from the bridge, then a stream
// of event frames. Authorization-class events carry a nonzero token
// and expect a verdict frame echoing the token; notification-class
// events carry token zero and expect no reply. The wire verdict is
// binary — allowWithModification collapses to allow at this boundary,
// since the kernel side only enforces proceed/block.
//
// Source implements lifecycle.EventSource. Connection failures are
// classified into the lifecycle error taxonomy so the state machine
// can distinguish a missing bridge from a permission problem.
package bridge
