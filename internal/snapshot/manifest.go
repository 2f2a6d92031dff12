package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/mmarray/blobstore"
	"github.com/hupe1980/mmarray/codec"
)

const (
	// CurrentFileName names the pointer to the newest manifest.
	CurrentFileName = "CURRENT"
	// ManifestVersion is the version of the manifest format.
	ManifestVersion = 1

	manifestPrefix = "MANIFEST-"
	manifestExt    = ".json"
	dataPrefix     = "DATA-"
	dataExt        = ".snap"
)

// Meta describes the array file a snapshot was taken from.
type Meta struct {
	Magic         string   `json:"magic"` // hex
	FormatVersion [3]uint8 `json:"format_version"`
	DataVersion   [3]uint8 `json:"data_version"`
	RecordSize    int      `json:"record_size"`
	BodyOffset    int64    `json:"body_offset"`
	Records       int64    `json:"records"`
}

// Manifest describes one committed snapshot.
type Manifest struct {
	Version     int         `json:"version"`
	Seq         uint64      `json:"seq"`
	CreatedAt   time.Time   `json:"created_at"`
	Meta        Meta        `json:"meta"`
	Data        string      `json:"data"` // relative to the snapshot directory
	Compression Compression `json:"compression"`
	Length      int64       `json:"length"`      // uncompressed bytes
	StoredSize  int64       `json:"stored_size"` // bytes of the data blob
	Checksum    string      `json:"checksum"`    // hex BLAKE3-256 of the uncompressed bytes
	Codec       string      `json:"codec"`
}

// ManifestName returns the blob name of manifest seq.
func ManifestName(name string, seq uint64) string {
	return path.Join(name, fmt.Sprintf("%s%06d%s", manifestPrefix, seq, manifestExt))
}

func dataFileName(seq uint64) string {
	return fmt.Sprintf("%s%06d%s", dataPrefix, seq, dataExt)
}

func parseSeq(base, prefix, ext string) (uint64, bool) {
	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ext) {
		return 0, false
	}
	seq, err := strconv.ParseUint(base[len(prefix):len(base)-len(ext)], 10, 64)
	if err != nil || seq == 0 {
		return 0, false
	}
	return seq, true
}

// ValidateName checks that name is a clean, relative, slash separated path.
func ValidateName(name string) error {
	if name == "" || name == "." || path.Clean(name) != name ||
		strings.HasPrefix(name, "/") || name == ".." || strings.HasPrefix(name, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Load reads manifest seq of name. Seq 0 loads the manifest CURRENT points to.
func Load(ctx context.Context, store blobstore.BlobStore, name string, seq uint64, c codec.Codec) (*Manifest, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	manifestName := ManifestName(name, seq)
	if seq == 0 {
		cur, err := blobstore.ReadAll(ctx, store, path.Join(name, CurrentFileName))
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return nil, err
		}
		manifestName = path.Join(name, strings.TrimSpace(string(cur)))
	}

	data, err := blobstore.ReadAll(ctx, store, manifestName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, manifestName)
		}
		return nil, err
	}

	m := &Manifest{}
	if err := codec.Resolve(data, c).Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, manifestName, err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	return m, nil
}

// List returns the readable manifests of name ordered by sequence.
// Unreadable manifests are skipped.
func List(ctx context.Context, store blobstore.BlobStore, name string, c codec.Codec) ([]*Manifest, error) {
	seqs, err := manifestSeqs(ctx, store, name)
	if err != nil {
		return nil, err
	}
	manifests := make([]*Manifest, 0, len(seqs))
	for _, seq := range seqs {
		m, err := Load(ctx, store, name, seq, c)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// manifestSeqs returns the sorted sequences of the manifests directly under name.
func manifestSeqs(ctx context.Context, store blobstore.BlobStore, name string) ([]uint64, error) {
	seqs, _, err := scan(ctx, store, name)
	return seqs, err
}

// scan lists the manifest and data sequences directly under name.
func scan(ctx context.Context, store blobstore.BlobStore, name string) (manifests, data []uint64, err error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}
	names, err := store.List(ctx, name+"/")
	if err != nil {
		return nil, nil, err
	}
	for _, n := range names {
		if path.Dir(n) != name {
			continue
		}
		base := path.Base(n)
		if seq, ok := parseSeq(base, manifestPrefix, manifestExt); ok {
			manifests = append(manifests, seq)
		} else if seq, ok := parseSeq(base, dataPrefix, dataExt); ok {
			data = append(data, seq)
		}
	}
	// Zero padding stops sorting names numerically past 999999.
	slices.Sort(manifests)
	slices.Sort(data)
	return manifests, data, nil
}
