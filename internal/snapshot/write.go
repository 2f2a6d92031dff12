package snapshot

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/hupe1980/mmarray/blobstore"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// Write stores src as the next snapshot of name and commits it as CURRENT.
//
// src is read on the calling goroutine while a second goroutine uploads the
// compressed stream; src must not change until Write returns. When pruning
// after a successful commit fails, the committed manifest is returned along
// with the error.
func Write(ctx context.Context, store blobstore.BlobStore, name string, src []byte, meta Meta, opts Options) (*Manifest, error) {
	opts = opts.withDefaults()
	if !opts.Compression.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, opts.Compression)
	}

	manifests, data, err := scan(ctx, store, name)
	if err != nil {
		return nil, err
	}
	var seq uint64 = 1
	if n := len(manifests); n > 0 {
		seq = max(seq, manifests[n-1]+1)
	}
	if n := len(data); n > 0 {
		seq = max(seq, data[n-1]+1)
	}

	end, err := opts.Resources.BeginTransfer(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	m := &Manifest{
		Version:     ManifestVersion,
		Seq:         seq,
		CreatedAt:   opts.Now().UTC(),
		Meta:        meta,
		Data:        dataFileName(seq),
		Compression: opts.Compression,
		Length:      int64(len(src)),
		Codec:       opts.Codec.Name(),
	}

	stored, sum, err := upload(ctx, store, path.Join(name, m.Data), src, opts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: upload %s: %w", m.Data, err)
	}
	m.StoredSize = stored
	m.Checksum = sum

	buf, err := opts.Codec.Marshal(m)
	if err != nil {
		return nil, err
	}
	manifestName := ManifestName(name, seq)
	if err := store.Put(ctx, manifestName, buf); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, manifestName)
		}
		return nil, err
	}
	if err := store.Put(ctx, path.Join(name, CurrentFileName), []byte(path.Base(manifestName))); err != nil {
		return nil, err
	}

	if opts.Retain > 0 {
		if _, err := Prune(ctx, store, name, opts); err != nil {
			return m, fmt.Errorf("snapshot: prune: %w", err)
		}
	}
	return m, nil
}

// upload streams the compressed src into blob dataName and returns the
// stored size and the checksum of src.
func upload(ctx context.Context, store blobstore.BlobStore, dataName string, src []byte, opts Options) (int64, string, error) {
	w, err := store.Create(ctx, dataName)
	if err != nil {
		return 0, "", err
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var stored int64
	g.Go(func() error {
		n, err := io.Copy(opts.Resources.Writer(gctx, w), pr)
		stored = n
		if err != nil {
			_ = pr.CloseWithError(err)
		}
		return err
	})

	h := blake3.New()
	perr := produce(gctx, pw, src, h, opts)
	_ = pw.CloseWithError(perr)

	if err := g.Wait(); err != nil || perr != nil {
		if err == nil {
			err = perr
		}
		discard(store, w, dataName)
		return 0, "", err
	}
	if err := w.Close(); err != nil {
		return 0, "", err
	}
	return stored, hex.EncodeToString(h.Sum(nil)), nil
}

func produce(ctx context.Context, pw io.Writer, src []byte, h *blake3.Hasher, opts Options) error {
	cw, err := newCompressor(opts.Compression, pw)
	if err != nil {
		return err
	}
	if err := feed(ctx, cw, src, h, opts); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

func feed(ctx context.Context, w io.Writer, src []byte, h *blake3.Hasher, opts Options) error {
	for off := 0; off < len(src); off += opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := src[off:min(off+opts.ChunkSize, len(src))]
		release, err := opts.Resources.ReserveChunk(ctx, int64(len(chunk)))
		if err != nil {
			return err
		}
		_, _ = h.Write(chunk)
		_, err = w.Write(chunk)
		release()
		if err != nil {
			return err
		}
	}
	return nil
}

// discard drops a failed upload, deleting it if the store published it anyway.
func discard(store blobstore.BlobStore, w blobstore.WritableBlob, name string) {
	published, _ := blobstore.Abort(w)
	if published {
		_ = store.Delete(context.Background(), name)
	}
}
