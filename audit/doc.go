// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the tamper-evident audit trail behind the
// logging handler.
//
// Records are encoded as deterministic CBOR and chained: every record
// carries a keyed BLAKE3 hash over (previous chain hash ‖ record
// bytes), so truncating the log or editing a record in place breaks
// verification of everything after it. The chain continues across
// segment rotations — each rotated segment records the chain value it
// starts and ends with.
//
// The active segment is plain CBOR so appending costs one encode and
// one buffered write on the authorization path. Compression (zstd or
// lz4) and optional XChaCha20-Poly1305 encryption happen only at
// rotation, off the hot path. The encryption master key lives in an
// mlock'd secret.Buffer and per-segment keys are derived from it with
// HKDF, so no two segments share a key.
package audit
