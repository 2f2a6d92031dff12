package snapshot

import (
	"context"
	"path"
	"strings"

	"github.com/hupe1980/mmarray/blobstore"
	"golang.org/x/sync/errgroup"
)

// Prune deletes all but the newest opts.Retain snapshots of name, together
// with data blobs older than the oldest kept snapshot. The snapshot CURRENT
// points to is never deleted. It returns the deleted sequences.
func Prune(ctx context.Context, store blobstore.BlobStore, name string, opts Options) ([]uint64, error) {
	opts = opts.withDefaults()
	if opts.Retain <= 0 {
		return nil, nil
	}

	manifests, data, err := scan(ctx, store, name)
	if err != nil {
		return nil, err
	}
	if len(manifests) <= opts.Retain {
		return nil, nil
	}
	oldestKept := manifests[len(manifests)-opts.Retain]

	var current uint64
	if cur, err := blobstore.ReadAll(ctx, store, path.Join(name, CurrentFileName)); err == nil {
		current, _ = parseSeq(strings.TrimSpace(string(cur)), manifestPrefix, manifestExt)
	}

	var victims []uint64
	for _, seq := range manifests {
		if seq < oldestKept && seq != current {
			victims = append(victims, seq)
		}
	}
	hasManifest := make(map[uint64]bool, len(manifests))
	for _, seq := range manifests {
		hasManifest[seq] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.PruneConcurrency)
	for _, seq := range victims {
		g.Go(func() error {
			// Manifest first so that a listed manifest always has its data.
			if err := store.Delete(gctx, ManifestName(name, seq)); err != nil {
				return err
			}
			return store.Delete(gctx, path.Join(name, dataFileName(seq)))
		})
	}
	// Orphaned data blobs of failed writes.
	for _, seq := range data {
		if seq < oldestKept && !hasManifest[seq] {
			g.Go(func() error {
				return store.Delete(gctx, path.Join(name, dataFileName(seq)))
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return victims, nil
}
