package snapshot

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/mmarray/blobstore"
	"github.com/zeebo/blake3"
)

// Read writes the uncompressed bytes of snapshot m of name to dst and
// verifies their length and checksum. On ErrCorrupt dst may hold partial data.
func Read(ctx context.Context, store blobstore.BlobStore, name string, m *Manifest, dst io.Writer, opts Options) error {
	opts = opts.withDefaults()

	end, err := opts.Resources.BeginTransfer(ctx)
	if err != nil {
		return err
	}
	defer end()

	dataName := path.Join(name, m.Data)
	b, err := store.Open(ctx, dataName)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", dataName, err)
	}
	defer func() { _ = b.Close() }()

	if b.Size() != m.StoredSize {
		return fmt.Errorf("%w: %s has %d bytes, manifest records %d", ErrCorrupt, dataName, b.Size(), m.StoredSize)
	}

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	dr, err := newDecompressor(m.Compression, opts.Resources.Reader(ctx, rc))
	if err != nil {
		return err
	}
	defer func() { _ = dr.Close() }()

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(dst, h), io.LimitReader(dr, m.Length+1))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, dataName, err)
	}
	if n != m.Length {
		return fmt.Errorf("%w: %s decodes to %d bytes, manifest records %d", ErrCorrupt, dataName, n, m.Length)
	}
	if sum := hex.EncodeToString(h.Sum(nil)); sum != m.Checksum {
		return fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, dataName)
	}
	return nil
}
