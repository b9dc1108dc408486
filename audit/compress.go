// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a rotated segment's
// payload. Stored in segment headers by wire name.
type Compression int

const (
	// CompressionNone stores the payload uncompressed. Also the
	// fallback when the payload turns out to be incompressible.
	CompressionNone Compression = iota

	// CompressionZstd is the default: audit records are repetitive
	// CBOR text and compress well at zstd's default level.
	CompressionZstd

	// CompressionLZ4 trades ratio for speed. Useful when rotation
	// frequency is high enough for zstd CPU cost to matter.
	CompressionLZ4
)

// String returns the wire name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression algorithm from its wire name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown audit compression: %q", name)
	}
}

// errIncompressible reports that compression did not shrink the
// payload; the caller stores it uncompressed instead.
var errIncompressible = errors.New("audit: payload is incompressible")

// zstd encoder/decoder are reused across rotations; both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("audit: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("audit: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses data with the given algorithm. Returns
// errIncompressible when the output would not be smaller.
func compressPayload(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 when it decides the input is
		// incompressible.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	default:
		return nil, fmt.Errorf("unsupported audit compression: %d", int(compression))
	}
}

// decompressPayload reverses compressPayload. The uncompressed size
// comes from the segment header and is verified exactly.
func decompressPayload(compressed []byte, compression Compression, uncompressedSize int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	default:
		return nil, fmt.Errorf("unsupported audit compression: %d", int(compression))
	}
}
