package snapshot

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the stream compressor of a data blob.
type Compression string

const (
	// CompressionNone stores the file bytes as they are.
	CompressionNone Compression = "none"
	// CompressionZstd uses a zstd stream (better ratio, good for cold copies).
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 uses an lz4 frame (fast).
	CompressionLZ4 Compression = "lz4"
)

// Valid reports whether c is a known compression.
func (c Compression) Valid() bool {
	switch c {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return true
	}
	return false
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// newCompressor wraps w. Close flushes the stream but does not close w.
func newCompressor(c Compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}
}

func newDecompressor(c Compression, r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}
}
