// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/privarion/privarion/event"
	"github.com/privarion/privarion/lib/secret"
)

func testRecord(t *testing.T, sequence int) Record {
	t.Helper()
	evt := &event.ProcessExecutionEvent{
		ProcessID:      int32(1000 + sequence),
		ExecutablePath: fmt.Sprintf("/usr/bin/tool-%d", sequence),
		Arguments:      []string{"--run"},
	}
	return NewRecord(
		time.Date(2026, 3, 14, 9, 0, sequence, 0, time.UTC),
		evt, event.Allow, "loggingHandler", "")
}

func openTestLog(t *testing.T, directory string, options Options) *Log {
	t.Helper()
	log, err := Open(directory, options)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return log
}

// segmentPaths lists rotated segment files in the directory, sorted.
func segmentPaths(t *testing.T, directory string) []string {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(directory, "audit-*.seg"))
	if err != nil {
		t.Fatalf("globbing segments: %v", err)
	}
	return paths
}

func TestAppendAndVerifyActive(t *testing.T) {
	directory := t.TempDir()
	log := openTestLog(t, directory, Options{})

	for i := 0; i < 10; i++ {
		if err := log.Append(testRecord(t, i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	count, err := VerifyActive(filepath.Join(directory, activeName))
	if err != nil {
		t.Fatalf("VerifyActive: %v", err)
	}
	if count != 10 {
		t.Errorf("VerifyActive counted %d records, want 10", count)
	}
}

func TestReopenResumesChain(t *testing.T) {
	directory := t.TempDir()

	log := openTestLog(t, directory, Options{})
	for i := 0; i < 3; i++ {
		if err := log.Append(testRecord(t, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	firstChain := log.chain
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	log = openTestLog(t, directory, Options{})
	if log.chain != firstChain {
		t.Fatal("reopened log did not recover the chain position")
	}
	if log.records != 3 {
		t.Fatalf("reopened log counted %d records, want 3", log.records)
	}
	for i := 3; i < 6; i++ {
		if err := log.Append(testRecord(t, i)); err != nil {
			t.Fatalf("Append after reopen: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	count, err := VerifyActive(filepath.Join(directory, activeName))
	if err != nil {
		t.Fatalf("VerifyActive after reopen: %v", err)
	}
	if count != 6 {
		t.Errorf("VerifyActive counted %d records, want 6", count)
	}
}

func TestTamperDetection(t *testing.T) {
	directory := t.TempDir()
	log := openTestLog(t, directory, Options{})
	for i := 0; i < 5; i++ {
		if err := log.Append(testRecord(t, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(directory, activeName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading active segment: %v", err)
	}

	// Flip one byte in the middle of the entry stream. Depending on
	// where it lands this either corrupts the CBOR framing or breaks
	// the chain; both must fail verification.
	tampered := append([]byte(nil), data...)
	tampered[len(tampered)/2] ^= 0x01
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("writing tampered segment: %v", err)
	}

	if _, err := VerifyActive(path); err == nil {
		t.Fatal("VerifyActive accepted a tampered segment")
	}

	// Reopening must refuse to append onto a broken chain.
	if _, err := Open(directory, Options{}); err == nil {
		t.Fatal("Open accepted a tampered active segment")
	}
}

func TestRotationRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			directory := t.TempDir()
			log := openTestLog(t, directory, Options{Compression: compression})

			for i := 0; i < 20; i++ {
				if err := log.Append(testRecord(t, i)); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			if err := log.Rotate(); err != nil {
				t.Fatalf("Rotate: %v", err)
			}

			// The chain continues into the fresh active segment.
			for i := 20; i < 25; i++ {
				if err := log.Append(testRecord(t, i)); err != nil {
					t.Fatalf("Append after rotation: %v", err)
				}
			}
			if err := log.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			segments := segmentPaths(t, directory)
			if len(segments) != 1 {
				t.Fatalf("found %d rotated segments, want 1", len(segments))
			}

			records, err := ReadSegment(segments[0], nil)
			if err != nil {
				t.Fatalf("ReadSegment: %v", err)
			}
			if len(records) != 20 {
				t.Fatalf("segment holds %d records, want 20", len(records))
			}
			if records[7].Target != "/usr/bin/tool-7" {
				t.Errorf("record 7 target = %q, want /usr/bin/tool-7", records[7].Target)
			}

			count, err := VerifyActive(filepath.Join(directory, activeName))
			if err != nil {
				t.Fatalf("VerifyActive after rotation: %v", err)
			}
			if count != 5 {
				t.Errorf("active segment holds %d records, want 5", count)
			}
		})
	}
}

func TestSizeTriggeredRotation(t *testing.T) {
	directory := t.TempDir()
	log := openTestLog(t, directory, Options{MaxSegmentBytes: 512})

	for i := 0; i < 50; i++ {
		if err := log.Append(testRecord(t, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments := segmentPaths(t, directory)
	if len(segments) == 0 {
		t.Fatal("no rotation happened despite the 512-byte threshold")
	}

	total := 0
	for _, path := range segments {
		records, err := ReadSegment(path, nil)
		if err != nil {
			t.Fatalf("ReadSegment %s: %v", filepath.Base(path), err)
		}
		total += len(records)
	}
	active, err := VerifyActive(filepath.Join(directory, activeName))
	if err != nil {
		t.Fatalf("VerifyActive: %v", err)
	}
	if total+active != 50 {
		t.Errorf("segments hold %d records and active holds %d, want 50 total", total, active)
	}
}

func TestEncryptedSegmentRoundTrip(t *testing.T) {
	keyBytes := make([]byte, KeySize)
	for i := range keyBytes {
		keyBytes[i] = byte(i)
	}
	key, err := secret.NewFromBytes(append([]byte(nil), keyBytes...))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer key.Close()

	directory := t.TempDir()
	log := openTestLog(t, directory, Options{Compression: CompressionZstd, Key: key})

	for i := 0; i < 15; i++ {
		if err := log.Append(testRecord(t, i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := log.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments := segmentPaths(t, directory)
	if len(segments) != 1 {
		t.Fatalf("found %d rotated segments, want 1", len(segments))
	}

	// Without the key the segment is unreadable.
	if _, err := ReadSegment(segments[0], nil); err == nil {
		t.Fatal("ReadSegment decrypted without a key")
	}

	// A different key must fail authentication, not decode garbage.
	wrongBytes := make([]byte, KeySize)
	wrongKey, err := secret.NewFromBytes(wrongBytes)
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	defer wrongKey.Close()
	if _, err := ReadSegment(segments[0], wrongKey); err == nil {
		t.Fatal("ReadSegment accepted the wrong key")
	}

	records, err := ReadSegment(segments[0], key)
	if err != nil {
		t.Fatalf("ReadSegment with key: %v", err)
	}
	if len(records) != 15 {
		t.Errorf("decrypted segment holds %d records, want 15", len(records))
	}
}

func TestAppendAfterClose(t *testing.T) {
	log := openTestLog(t, t.TempDir(), Options{})
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := log.Append(testRecord(t, 0)); err == nil {
		t.Fatal("Append succeeded on a closed log")
	}
	// Close is idempotent.
	if err := log.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
