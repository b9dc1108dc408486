// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Privarion's standard CBOR encoding.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// The same logical value always produces identical bytes, which the
// audit log's hash chain depends on — a record must hash the same way
// when written and when verified.
//
// Consumers import only this package, never fxamacker/cbor directly,
// so the encoder configuration stays in one place.
package codec
