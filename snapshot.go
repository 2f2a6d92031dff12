package mmarray

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/mmarray/blobstore"
	"github.com/hupe1980/mmarray/codec"
	"github.com/hupe1980/mmarray/internal/fs"
	"github.com/hupe1980/mmarray/internal/header"
	"github.com/hupe1980/mmarray/internal/lockfile"
	"github.com/hupe1980/mmarray/internal/resource"
	"github.com/hupe1980/mmarray/internal/snapshot"
)

// Compression names the compressor of a snapshot's data blob.
type Compression = snapshot.Compression

const (
	CompressionNone = snapshot.CompressionNone
	CompressionZstd = snapshot.CompressionZstd
	CompressionLZ4  = snapshot.CompressionLZ4
)

var (
	// ErrSnapshotNotFound is returned when a name has no (matching) snapshot.
	ErrSnapshotNotFound = snapshot.ErrNotFound
	// ErrSnapshotCorrupt is returned when a snapshot fails verification.
	ErrSnapshotCorrupt = snapshot.ErrCorrupt
	// ErrSnapshotConflict is returned when a concurrent writer committed the
	// same snapshot sequence on a store with write-once manifests.
	ErrSnapshotConflict = snapshot.ErrConflict
)

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Name          string
	Seq           uint64
	CreatedAt     time.Time
	Magic         Magic
	FormatVersion Version
	DataVersion   Version
	RecordSize    int
	Records       int64
	// Length is the size of the array file in bytes.
	Length int64
	// StoredSize is the size of the compressed data blob.
	StoredSize  int64
	Compression Compression
	Checksum    string
}

type snapshotOptions struct {
	snap     snapshot.Options
	seq      uint64
	logger   *Logger
	fsys     fs.FileSystem
	fileMode os.FileMode
}

// SnapshotOption configures Snapshot, Restore and ListSnapshots.
type SnapshotOption func(*snapshotOptions)

// WithCompression sets the data blob compression. Default zstd.
func WithCompression(c Compression) SnapshotOption {
	return func(o *snapshotOptions) { o.snap.Compression = c }
}

// WithRetain keeps only the newest n snapshots of a name after each
// Snapshot. 0 keeps all.
func WithRetain(n int) SnapshotOption {
	return func(o *snapshotOptions) { o.snap.Retain = max(n, 0) }
}

// WithCodec sets the manifest codec. Default codec.Default.
func WithCodec(c codec.Codec) SnapshotOption {
	return func(o *snapshotOptions) { o.snap.Codec = c }
}

// WithResourceController limits concurrent transfers, chunk memory and
// throughput of snapshot and restore.
func WithResourceController(rc *resource.Controller) SnapshotOption {
	return func(o *snapshotOptions) { o.snap.Resources = rc }
}

// WithSnapshotSeq makes Restore use snapshot seq instead of the current one.
func WithSnapshotSeq(seq uint64) SnapshotOption {
	return func(o *snapshotOptions) { o.seq = seq }
}

// WithSnapshotLogger sets the logger of Restore. Snapshot logs through the
// array's logger.
func WithSnapshotLogger(logger *Logger) SnapshotOption {
	return func(o *snapshotOptions) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithRestoreFileMode sets the permission bits of a restored file. Default 0644.
func WithRestoreFileMode(mode os.FileMode) SnapshotOption {
	return func(o *snapshotOptions) { o.fileMode = mode }
}

func withSnapshotFileSystem(fsys fs.FileSystem) SnapshotOption {
	return func(o *snapshotOptions) { o.fsys = fsys }
}

func applySnapshotOptions(optFns []SnapshotOption) snapshotOptions {
	o := snapshotOptions{
		logger:   NoopLogger(),
		fsys:     fs.Default,
		fileMode: 0o644,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func snapshotInfo(name string, m *snapshot.Manifest) (SnapshotInfo, error) {
	info := SnapshotInfo{
		Name:          name,
		Seq:           m.Seq,
		CreatedAt:     m.CreatedAt,
		FormatVersion: m.Meta.FormatVersion,
		DataVersion:   m.Meta.DataVersion,
		RecordSize:    m.Meta.RecordSize,
		Records:       m.Meta.Records,
		Length:        m.Length,
		StoredSize:    m.StoredSize,
		Compression:   m.Compression,
		Checksum:      m.Checksum,
	}
	magic, err := hex.DecodeString(m.Meta.Magic)
	if err != nil || len(magic) != len(info.Magic) {
		return SnapshotInfo{}, fmt.Errorf("%w: manifest %d has invalid magic %q", ErrSnapshotCorrupt, m.Seq, m.Meta.Magic)
	}
	copy(info.Magic[:], magic)
	return info, nil
}

// Snapshot copies the array file to store as the next snapshot of name and
// makes it current. The array must not be modified until Snapshot returns.
// Unflushed records are included; the copy is taken from the mapping.
func (a *Array[T]) Snapshot(ctx context.Context, store blobstore.BlobStore, name string, optFns ...SnapshotOption) (_ SnapshotInfo, err error) {
	if err := a.check(); err != nil {
		return SnapshotInfo{}, err
	}
	start := time.Now()
	o := applySnapshotOptions(optFns)

	var m *snapshot.Manifest
	defer func() {
		var seq uint64
		var stored int64
		if m != nil {
			seq, stored = m.Seq, m.StoredSize
		}
		a.opts.metricsCollector.RecordSnapshot(stored, time.Since(start), err)
		a.logger.LogSnapshot(ctx, name, seq, stored, err)
	}()

	h := a.lf.Header()
	m, err = snapshot.Write(ctx, store, name, a.contents(), snapshot.Meta{
		Magic:         hex.EncodeToString(h.Magic[:]),
		FormatVersion: h.FormatVersion,
		DataVersion:   h.DataVersion,
		RecordSize:    a.size,
		BodyOffset:    a.body,
		Records:       int64(a.n),
	}, o.snap)
	if m == nil {
		return SnapshotInfo{}, err
	}
	info, ierr := snapshotInfo(name, m)
	if ierr != nil {
		return SnapshotInfo{}, ierr
	}
	return info, err
}

// ListSnapshots returns the readable snapshots of name, oldest first.
func ListSnapshots(ctx context.Context, store blobstore.BlobStore, name string, optFns ...SnapshotOption) ([]SnapshotInfo, error) {
	o := applySnapshotOptions(optFns)
	manifests, err := snapshot.List(ctx, store, name, o.snap.Codec)
	if err != nil {
		return nil, err
	}
	infos := make([]SnapshotInfo, 0, len(manifests))
	for _, m := range manifests {
		info, err := snapshotInfo(name, m)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Restore replaces the file at path with the current snapshot of name, or
// with the one chosen by WithSnapshotSeq.
//
// The snapshot is written to a temporary file beside path, verified against
// its manifest and header, synced and then renamed over path. Restore fails
// with ErrLockContention while path is open by an Array in any process.
func Restore(ctx context.Context, store blobstore.BlobStore, name, path string, optFns ...SnapshotOption) (_ SnapshotInfo, err error) {
	o := applySnapshotOptions(optFns)
	defer func() {
		o.logger.LogRestore(ctx, name, path, err)
	}()

	m, err := snapshot.Load(ctx, store, name, o.seq, o.snap.Codec)
	if err != nil {
		return SnapshotInfo{}, err
	}
	info, err := snapshotInfo(name, m)
	if err != nil {
		return SnapshotInfo{}, err
	}

	release, err := lockTarget(o.fsys, path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	defer release()

	f, tmp, err := fs.CreateTemp(o.fsys, path, "restore", os.O_RDWR, o.fileMode)
	if err != nil {
		return SnapshotInfo{}, ioError("open", path, err)
	}
	done := false
	defer func() {
		if !done {
			_ = f.Close()
			_ = o.fsys.Remove(tmp)
		}
	}()

	if err := snapshot.Read(ctx, store, name, m, f, o.snap); err != nil {
		return SnapshotInfo{}, err
	}
	if err := verifyRestored(f, info); err != nil {
		return SnapshotInfo{}, err
	}
	if err := f.Sync(); err != nil {
		return SnapshotInfo{}, ioError("fsync", tmp, err)
	}
	done = true
	if err := f.Close(); err != nil {
		_ = o.fsys.Remove(tmp)
		return SnapshotInfo{}, ioError("close", tmp, err)
	}
	if err := fs.Publish(o.fsys, tmp, path); err != nil {
		return SnapshotInfo{}, ioError("rename", path, err)
	}
	return info, nil
}

// lockTarget holds the lock of an existing file at path until release is
// called, so that no Array opens the old file while it is being replaced.
func lockTarget(fsys fs.FileSystem, path string) (release func(), err error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return func() {}, nil
		}
		return nil, ioError("open", path, err)
	}
	held, err := lockfile.Held(f.Fd())
	if err != nil {
		_ = f.Close()
		return nil, ioError("fstat", path, err)
	}
	if held {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is open in this process", ErrLockContention, path)
	}
	if err := lockfile.TryLock(f.Fd()); err != nil {
		_ = f.Close()
		if errors.Is(err, lockfile.ErrLockContention) {
			return nil, fmt.Errorf("%w: %s", ErrLockContention, path)
		}
		return nil, ioError("flock", path, err)
	}
	return func() {
		_ = lockfile.Unlock(f.Fd())
		_ = f.Close()
	}, nil
}

// verifyRestored checks the header and body of a restored file against the
// manifest it was restored from.
func verifyRestored(f fs.File, info SnapshotInfo) error {
	if err := header.CheckRecordSize(info.RecordSize); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	buf := make([]byte, header.Size(info.RecordSize))
	if _, err := f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: read header: %w", ErrSnapshotCorrupt, err)
	}
	found, err := header.Decode(buf, info.RecordSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	report, err := header.Validate(buf, header.Expect{
		Magic:       info.Magic,
		DataVersion: info.DataVersion,
		Default:     found.Default,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	if report.Found.DataVersion != info.DataVersion || report.Found.FormatVersion != info.FormatVersion {
		return fmt.Errorf("%w: header versions differ from manifest", ErrSnapshotCorrupt)
	}

	body := info.Length - report.Found.BodyOffset()
	if body < 0 || body%int64(info.RecordSize) != 0 || body/int64(info.RecordSize) != info.Records {
		return fmt.Errorf("%w: %w: %d body bytes for %d records of %d bytes",
			ErrSnapshotCorrupt, ErrBodySizeMismatch, body, info.Records, info.RecordSize)
	}
	return nil
}
