// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"time"

	"github.com/zeebo/blake3"

	"github.com/privarion/privarion/event"
)

// Record is one audit trail entry. Field values are wire names
// (category and verdict strings), not enum ordinals, so a record
// remains interpretable without this package's Go types.
type Record struct {
	// Time is when the event was observed.
	Time time.Time `cbor:"time"`

	// Category is the event category wire name.
	Category string `cbor:"category"`

	// Verdict is the verdict wire name rendered by the recording
	// handler for this event.
	Verdict string `cbor:"verdict"`

	// PID is the originating process.
	PID int32 `cbor:"pid"`

	// Target is the policy resolution identifier of the event.
	Target string `cbor:"target"`

	// Handler names the handler that produced the record.
	Handler string `cbor:"handler,omitempty"`

	// Detail carries handler-specific context (matched pattern,
	// destination address, queried domain).
	Detail string `cbor:"detail,omitempty"`
}

// NewRecord builds a record for an event at the given time.
func NewRecord(now time.Time, evt event.Event, verdict event.Verdict, handler, detail string) Record {
	return Record{
		Time:     now,
		Category: evt.Category().String(),
		Verdict:  verdict.String(),
		PID:      evt.PID(),
		Target:   evt.Target(),
		Handler:  handler,
		Detail:   detail,
	}
}

// chainHash is a 32-byte BLAKE3 digest linking a record to everything
// recorded before it.
type chainHash [32]byte

// chainDomainKey is the fixed BLAKE3 key for chain hashing. Domain
// separation keeps audit chain hashes from ever colliding with hashes
// computed elsewhere over the same bytes. The value is the ASCII
// domain name zero-padded to 32 bytes — readable in hex dumps without
// weakening the keyed construction.
var chainDomainKey = [32]byte{
	'p', 'r', 'i', 'v', 'a', 'r', 'i', 'o', 'n', '.',
	'a', 'u', 'd', 'i', 't', '.', 'c', 'h', 'a', 'i', 'n', '.', 'v', '1',
	0, 0, 0, 0, 0, 0, 0, 0,
}

// extendChain computes the chain value after appending a record:
// keyed BLAKE3 over the previous chain value followed by the record's
// deterministic encoding.
func extendChain(previous chainHash, recordBytes []byte) chainHash {
	hasher, err := blake3.NewKeyed(chainDomainKey[:])
	if err != nil {
		// NewKeyed fails only for a wrong key length, which the fixed
		// array type rules out.
		panic("audit: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(previous[:])
	hasher.Write(recordBytes)

	var next chainHash
	copy(next[:], hasher.Sum(nil))
	return next
}

// genesisChain returns the chain value before the first record of a
// fresh log.
func genesisChain() chainHash {
	var zero chainHash
	return extendChain(zero, []byte("privarion.audit.genesis.v1"))
}
