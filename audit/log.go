// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/privarion/privarion/lib/codec"
	"github.com/privarion/privarion/lib/secret"
)

// formatVersion is the on-disk format version of both the active
// segment and rotated segments.
const formatVersion = 1

// activeName is the file name of the segment currently being appended
// to. Rotated segments are named audit-<nanosecond timestamp>.seg.
const activeName = "audit.cbor"

// DefaultMaxSegmentBytes is the rotation threshold when Options does
// not set one.
const DefaultMaxSegmentBytes = 4 << 20

// Options configures a Log.
type Options struct {
	// MaxSegmentBytes rotates the active segment once it grows past
	// this size. Zero means DefaultMaxSegmentBytes.
	MaxSegmentBytes int64

	// Compression is applied to rotated segments. The active segment
	// is never compressed — appends stay on the authorization path's
	// latency budget.
	Compression Compression

	// Key, when non-nil, encrypts rotated segments. Must be KeySize
	// bytes. The Log borrows the buffer; the caller closes it after
	// closing the Log.
	Key *secret.Buffer
}

// activeHeader is the first CBOR item of the active segment. It
// records the chain value the segment starts from, so verification
// and crash recovery can resume mid-chain after rotations.
type activeHeader struct {
	Version    int    `cbor:"version"`
	StartChain []byte `cbor:"start_chain"`
}

// entry is one appended item of the active segment: the record plus
// the chain value after it.
type entry struct {
	Record Record `cbor:"record"`
	Chain  []byte `cbor:"chain"`
}

// segmentHeader describes a rotated segment.
type segmentHeader struct {
	Version          int    `cbor:"version"`
	Compression      string `cbor:"compression"`
	Encrypted        bool   `cbor:"encrypted"`
	UncompressedSize int64  `cbor:"uncompressed_size"`
	Records          int    `cbor:"records"`
	StartChain       []byte `cbor:"start_chain"`
	EndChain         []byte `cbor:"end_chain"`
}

// segmentFile is the single CBOR item a rotated segment file holds.
type segmentFile struct {
	Header  segmentHeader `cbor:"header"`
	Payload []byte        `cbor:"payload"`
}

// Log is the append-only audit trail. Safe for concurrent use; a
// single mutex serializes appends, which matches the write pattern —
// one short append per mediated event.
type Log struct {
	directory string
	options   Options

	mu           sync.Mutex
	file         *os.File
	size         int64
	records      int
	chain        chainHash
	segmentStart chainHash
	closed       bool
}

// Open opens (or creates) the audit log in directory. An existing
// active segment is replayed to recover the chain position; a corrupt
// active segment is an error rather than silently restarting the
// chain.
func Open(directory string, options Options) (*Log, error) {
	if options.MaxSegmentBytes <= 0 {
		options.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if options.Key != nil && options.Key.Len() != KeySize {
		return nil, fmt.Errorf("audit: encryption key is %d bytes, want %d", options.Key.Len(), KeySize)
	}

	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	path := filepath.Join(directory, activeName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening active audit segment: %w", err)
	}

	log := &Log{
		directory: directory,
		options:   options,
		file:      file,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat active audit segment: %w", err)
	}

	if info.Size() == 0 {
		log.chain = genesisChain()
		log.segmentStart = log.chain
		if err := log.writeActiveHeader(); err != nil {
			file.Close()
			return nil, err
		}
		return log, nil
	}

	// Replay the existing active segment to recover chain state.
	data, err := os.ReadFile(path)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading active audit segment: %w", err)
	}
	start, end, count, err := verifyEntries(data)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("active audit segment failed verification: %w", err)
	}
	log.segmentStart = start
	log.chain = end
	log.records = count
	log.size = info.Size()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking active audit segment: %w", err)
	}
	return log, nil
}

// Append adds one record to the active segment, extending the hash
// chain. Rotation happens inline when the segment crosses the size
// threshold; rotation is the only slow path and it runs at most once
// per threshold's worth of events.
func (l *Log) Append(record Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("audit: append to closed log")
	}

	recordBytes, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	next := extendChain(l.chain, recordBytes)

	entryBytes, err := codec.Marshal(entry{Record: record, Chain: next[:]})
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}
	if _, err := l.file.Write(entryBytes); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}

	l.chain = next
	l.size += int64(len(entryBytes))
	l.records++

	if l.size >= l.options.MaxSegmentBytes {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Records returns the number of records in the active segment.
func (l *Log) Records() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records
}

// Rotate forces rotation of the active segment regardless of size.
// A segment with no records is not rotated.
func (l *Log) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("audit: rotate on closed log")
	}
	if l.records == 0 {
		return nil
	}
	return l.rotateLocked()
}

// Close flushes and closes the active segment. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("syncing active audit segment: %w", err)
	}
	return l.file.Close()
}

// writeActiveHeader writes the active segment header at the current
// file position and accounts for its size.
func (l *Log) writeActiveHeader() error {
	headerBytes, err := codec.Marshal(activeHeader{
		Version:    formatVersion,
		StartChain: l.segmentStart[:],
	})
	if err != nil {
		return fmt.Errorf("encoding active segment header: %w", err)
	}
	if _, err := l.file.Write(headerBytes); err != nil {
		return fmt.Errorf("writing active segment header: %w", err)
	}
	l.size = int64(len(headerBytes))
	l.records = 0
	return nil
}

// rotateLocked seals the active segment into a compressed (and
// optionally encrypted) segment file, then resets the active segment
// to continue the chain. Caller holds the lock.
func (l *Log) rotateLocked() error {
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing active audit segment: %w", err)
	}

	activePath := filepath.Join(l.directory, activeName)
	payload, err := os.ReadFile(activePath)
	if err != nil {
		return fmt.Errorf("reading active audit segment for rotation: %w", err)
	}

	header := segmentHeader{
		Version:          formatVersion,
		Compression:      l.options.Compression.String(),
		Encrypted:        l.options.Key != nil,
		UncompressedSize: int64(len(payload)),
		Records:          l.records,
		StartChain:       l.segmentStart[:],
		EndChain:         l.chain[:],
	}

	compressed, err := compressPayload(payload, l.options.Compression)
	if err != nil {
		if err != errIncompressible {
			return fmt.Errorf("compressing audit segment: %w", err)
		}
		header.Compression = CompressionNone.String()
		compressed = payload
	}

	if l.options.Key != nil {
		sealed, err := sealSegment(l.options.Key, l.segmentStart, compressed)
		if err != nil {
			return err
		}
		compressed = sealed
	}

	segmentBytes, err := codec.Marshal(segmentFile{Header: header, Payload: compressed})
	if err != nil {
		return fmt.Errorf("encoding audit segment: %w", err)
	}

	segmentPath := filepath.Join(l.directory,
		fmt.Sprintf("audit-%d.seg", time.Now().UnixNano()))
	if err := writeFileAtomic(segmentPath, segmentBytes); err != nil {
		return err
	}

	// Reset the active segment, continuing the chain.
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating active audit segment: %w", err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking active audit segment: %w", err)
	}
	l.segmentStart = l.chain
	return l.writeActiveHeader()
}

// writeFileAtomic writes data to path via a temporary file, fsync,
// and rename, so a crash mid-rotation never leaves a half-written
// segment under the final name.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary segment file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary segment file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary segment file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary segment file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming segment file into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// verifyEntries checks a raw active-segment byte stream: decodes the
// header and every entry, recomputes the chain, and compares it to
// the stored values. Returns the start chain, the final chain, and
// the record count.
func verifyEntries(data []byte) (start, end chainHash, count int, err error) {
	decoder := codec.NewDecoder(bytes.NewReader(data))

	var header activeHeader
	if err := decoder.Decode(&header); err != nil {
		return start, end, 0, fmt.Errorf("decoding segment header: %w", err)
	}
	if header.Version != formatVersion {
		return start, end, 0, fmt.Errorf("unsupported audit format version %d", header.Version)
	}
	if len(header.StartChain) != len(start) {
		return start, end, 0, fmt.Errorf("segment start chain is %d bytes, want %d", len(header.StartChain), len(start))
	}
	copy(start[:], header.StartChain)

	chain := start
	for {
		var item entry
		if err := decoder.Decode(&item); err != nil {
			if err == io.EOF {
				break
			}
			return start, end, count, fmt.Errorf("decoding entry %d: %w", count, err)
		}

		recordBytes, err := codec.Marshal(item.Record)
		if err != nil {
			return start, end, count, fmt.Errorf("re-encoding entry %d: %w", count, err)
		}
		chain = extendChain(chain, recordBytes)
		if !bytes.Equal(chain[:], item.Chain) {
			return start, end, count, fmt.Errorf("chain mismatch at entry %d: audit trail has been modified", count)
		}
		count++
	}
	return start, chain, count, nil
}

// VerifyActive verifies the active segment file at path and returns
// its record count.
func VerifyActive(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading active audit segment: %w", err)
	}
	_, _, count, err := verifyEntries(data)
	return count, err
}

// ReadSegment opens a rotated segment file, decrypting with masterKey
// when the segment is encrypted (masterKey may be nil for plaintext
// segments), verifies its chain, and returns the records. The
// header's end chain must match the recomputed chain exactly.
func ReadSegment(path string, masterKey *secret.Buffer) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audit segment: %w", err)
	}

	var segment segmentFile
	if err := codec.Unmarshal(data, &segment); err != nil {
		return nil, fmt.Errorf("decoding audit segment: %w", err)
	}
	if segment.Header.Version != formatVersion {
		return nil, fmt.Errorf("unsupported audit format version %d", segment.Header.Version)
	}

	payload := segment.Payload

	if segment.Header.Encrypted {
		if masterKey == nil {
			return nil, fmt.Errorf("audit segment is encrypted and no key was provided")
		}
		var start chainHash
		copy(start[:], segment.Header.StartChain)
		payload, err = openSegment(masterKey, start, payload)
		if err != nil {
			return nil, err
		}
	}

	compression, err := ParseCompression(segment.Header.Compression)
	if err != nil {
		return nil, err
	}
	payload, err = decompressPayload(payload, compression, int(segment.Header.UncompressedSize))
	if err != nil {
		return nil, err
	}

	start, end, count, err := verifyEntries(payload)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(start[:], segment.Header.StartChain) || !bytes.Equal(end[:], segment.Header.EndChain) {
		return nil, fmt.Errorf("segment chain endpoints do not match header: audit trail has been modified")
	}
	if count != segment.Header.Records {
		return nil, fmt.Errorf("segment holds %d records, header claims %d", count, segment.Header.Records)
	}

	// Decode again just to collect the records; verifyEntries already
	// validated the stream.
	records := make([]Record, 0, count)
	decoder := codec.NewDecoder(bytes.NewReader(payload))
	var header activeHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("decoding segment header: %w", err)
	}
	for {
		var item entry
		if err := decoder.Decode(&item); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding segment entry: %w", err)
		}
		records = append(records, item.Record)
	}
	return records, nil
}
