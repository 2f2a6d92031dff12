package lockfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/mmarray/internal/fs"
	"github.com/hupe1980/mmarray/internal/header"
)

// Spec describes the format a caller expects of a file.
type Spec struct {
	Magic       header.Magic
	DataVersion header.Version
	// Default is the encoded default record. Its length is the record size.
	Default []byte
}

// RecordSize returns the record size implied by Default.
func (s Spec) RecordSize() int { return len(s.Default) }

// Options control how Open behaves.
type Options struct {
	// FS is the filesystem to open through. Defaults to fs.Default.
	FS fs.FileSystem
	// NoCreate makes Open fail with os.ErrNotExist for a missing file.
	NoCreate bool
	// Perm is the mode for newly created files. Defaults to 0o644.
	Perm os.FileMode
	// Strict turns format or data version mismatches into errors.
	Strict bool
}

// File is an open, locked and validated array file.
type File struct {
	f       fs.File
	path    string
	id      fileID
	hdr     header.Header
	report  header.Report
	created bool
	length  int64
	closed  bool
}

// Open opens or creates the array file at path. See the package documentation.
func Open(path string, spec Spec, opts Options) (_ *File, err error) {
	if err := header.CheckRecordSize(spec.RecordSize()); err != nil {
		return nil, err
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.Default
	}
	perm := opts.Perm
	if perm == 0 {
		perm = 0o644
	}
	flag := os.O_RDWR
	if !opts.NoCreate {
		flag |= os.O_CREATE
	}

	f, err := fsys.OpenFile(path, flag, perm)
	if err != nil {
		return nil, ioErr("open", path, err)
	}

	id, err := identify(f.Fd())
	if err != nil {
		_ = f.Close()
		return nil, ioErr("fstat", path, err)
	}
	if err := register(id, path); err != nil {
		_ = f.Close()
		return nil, err
	}

	lf := &File{f: f, path: path, id: id}
	locked := false
	defer func() {
		if err == nil {
			return
		}
		if locked {
			_ = Unlock(f.Fd())
		}
		_ = f.Close()
		unregister(id)
	}()

	if err := TryLock(f.Fd()); err != nil {
		if err == ErrLockContention {
			return nil, fmt.Errorf("%w: %s", ErrLockContention, path)
		}
		return nil, ioErr("flock", path, err)
	}
	locked = true

	info, err := f.Stat()
	if err != nil {
		return nil, ioErr("stat", path, err)
	}

	if info.Size() == 0 {
		if err := lf.initialize(spec); err != nil {
			return nil, err
		}
		return lf, nil
	}

	if err := lf.verify(spec, info.Size(), opts.Strict); err != nil {
		return nil, err
	}
	return lf, nil
}

// initialize writes the header and zero padding into an empty file.
func (lf *File) initialize(spec Spec) error {
	h := header.New(spec.Magic, spec.DataVersion, spec.Default)
	if _, err := lf.f.WriteAt(h.Encode(), 0); err != nil {
		return ioErr("write header", lf.path, err)
	}
	size := h.BodyOffset()
	if err := lf.f.Truncate(size); err != nil {
		return ioErr("truncate", lf.path, err)
	}
	if err := lf.f.Sync(); err != nil {
		return ioErr("fsync", lf.path, err)
	}
	lf.hdr = h
	lf.report = header.Report{Found: h}
	lf.created = true
	lf.length = size
	return nil
}

// verify checks an existing file of the given length against spec.
func (lf *File) verify(spec Spec, length int64, strict bool) error {
	hs := header.Size(spec.RecordSize())
	if length < int64(hs) {
		return &header.CorruptError{
			Kind:   header.Truncated,
			Detail: fmt.Sprintf("%s is %d bytes, header needs %d", lf.path, length, hs),
		}
	}

	buf := make([]byte, hs)
	if _, err := lf.f.ReadAt(buf, 0); err != nil {
		return ioErr("read header", lf.path, err)
	}

	report, err := header.Validate(buf, header.Expect{
		Magic:       spec.Magic,
		DataVersion: spec.DataVersion,
		Default:     spec.Default,
	})
	if err != nil {
		return err
	}
	if strict {
		if err := report.Err(); err != nil {
			return err
		}
	}

	h := report.Found
	bodyOff := h.BodyOffset()
	if length < bodyOff {
		return fmt.Errorf("%w: %s is %d bytes, body starts at %d", ErrBodySizeMismatch, lf.path, length, bodyOff)
	}
	if rem := (length - bodyOff) % int64(spec.RecordSize()); rem != 0 {
		return fmt.Errorf("%w: %s body is %d bytes, %d trailing bytes for record size %d",
			ErrBodySizeMismatch, lf.path, length-bodyOff, rem, spec.RecordSize())
	}

	lf.hdr = h
	lf.report = report
	lf.length = length
	return nil
}

// Path returns the path the file was opened with.
func (lf *File) Path() string { return lf.path }

// Fd returns the locked descriptor.
func (lf *File) Fd() uintptr { return lf.f.Fd() }

// Header returns the header in effect. For a reopened file this is the
// on-disk header, which may differ from the caller's in advisory fields.
func (lf *File) Header() header.Header { return lf.hdr }

// Report returns the advisory result of header validation.
func (lf *File) Report() header.Report { return lf.report }

// Created reports whether Open initialized the file.
func (lf *File) Created() bool { return lf.created }

// Length returns the last committed file length.
func (lf *File) Length() int64 { return lf.length }

// BodyOffset returns the file offset of the first record.
func (lf *File) BodyOffset() int64 { return lf.hdr.BodyOffset() }

// Resize sets the file length. On failure the committed length is unchanged.
func (lf *File) Resize(size int64) error {
	if lf.closed {
		return ErrClosed
	}
	if size < lf.BodyOffset() {
		return fmt.Errorf("lockfile: resize to %d would cut into the header", size)
	}
	if err := lf.f.Truncate(size); err != nil {
		return ioErr("truncate", lf.path, err)
	}
	lf.length = size
	return nil
}

// Sync flushes file data and metadata to stable storage.
func (lf *File) Sync() error {
	if lf.closed {
		return ErrClosed
	}
	return ioErr("fsync", lf.path, lf.f.Sync())
}

// Close releases the lock and the descriptor. It is idempotent.
// Any mapping over the descriptor must be released first.
func (lf *File) Close() error {
	if lf.closed {
		return nil
	}
	lf.closed = true
	defer unregister(lf.id)

	unlockErr := Unlock(lf.f.Fd())
	return errors.Join(ioErr("unlock", lf.path, unlockErr), ioErr("close", lf.path, lf.f.Close()))
}
