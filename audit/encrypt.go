// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/privarion/privarion/lib/secret"
)

// KeySize is the size in bytes of the segment encryption master key.
const KeySize = 32

// sealedVersion is the version byte prepended to every sealed segment
// payload. It is included as additional authenticated data, so
// tampering with it fails authentication.
const sealedVersion byte = 0x01

// hkdfInfoSegment is the HKDF info prefix for per-segment key
// derivation. The segment's starting chain value is appended, binding
// each derived key to one position in the audit chain. Changing this
// constant invalidates all sealed segments.
var hkdfInfoSegment = []byte("privarion.audit.segment.v1")

// deriveSegmentKey derives the encryption key for one segment from
// the master key and the segment's starting chain value. The master
// key is borrowed via Bytes() and is not closed here.
func deriveSegmentKey(masterKey *secret.Buffer, startChain chainHash) ([]byte, error) {
	if masterKey.Len() != KeySize {
		return nil, fmt.Errorf("audit: master key is %d bytes, want %d", masterKey.Len(), KeySize)
	}

	info := make([]byte, 0, len(hkdfInfoSegment)+len(startChain))
	info = append(info, hkdfInfoSegment...)
	info = append(info, startChain[:]...)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey.Bytes(), nil, info), key); err != nil {
		return nil, fmt.Errorf("audit: segment key derivation failed: %w", err)
	}
	return key, nil
}

// sealSegment encrypts a segment payload with XChaCha20-Poly1305
// under a key derived for this segment. Output layout: version byte,
// 24-byte random nonce, ciphertext with tag.
func sealSegment(masterKey *secret.Buffer, startChain chainHash, plaintext []byte) ([]byte, error) {
	key, err := deriveSegmentKey(masterKey, startChain)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("audit: AEAD initialization failed: %w", err)
	}

	sealed := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	sealed[0] = sealedVersion
	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("audit: nonce generation failed: %w", err)
	}

	return aead.Seal(sealed, nonce, plaintext, []byte{sealedVersion}), nil
}

// openSegment decrypts a payload produced by sealSegment.
func openSegment(masterKey *secret.Buffer, startChain chainHash, sealed []byte) ([]byte, error) {
	if len(sealed) < 1+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("audit: sealed segment too short (%d bytes)", len(sealed))
	}
	if sealed[0] != sealedVersion {
		return nil, fmt.Errorf("audit: unknown sealed segment version %d", sealed[0])
	}

	key, err := deriveSegmentKey(masterKey, startChain)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("audit: AEAD initialization failed: %w", err)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[1+chacha20poly1305.NonceSizeX:], []byte{sealedVersion})
	if err != nil {
		return nil, fmt.Errorf("audit: segment decryption failed: %w", err)
	}
	return plaintext, nil
}
