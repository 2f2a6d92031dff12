package mmarray

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/hupe1980/mmarray/internal/header"
	"github.com/hupe1980/mmarray/internal/lockfile"
	"github.com/hupe1980/mmarray/internal/mmap"
	"github.com/hupe1980/mmarray/internal/pageset"
)

// Magic identifies the kind of data a file holds.
type Magic = header.Magic

// Version is a three-part version stored in the header.
type Version = header.Version

// HeaderMismatch is an advisory difference between the on-disk header and
// what the opener expected.
type HeaderMismatch = header.Mismatch

// FormatVersion is the container format version written into new files.
var FormatVersion = header.FormatVersion

// A mapping shrinks once it is this many times larger than needed.
const shrinkRatio = 4

type state uint8

const (
	stateOpen state = iota
	stateBroken
	stateClosed
)

// mapping is the view of the file that records are read and written through.
// *mmap.Writable implements it.
type mapping interface {
	Bytes() []byte
	Capacity() int
	Mapped() bool
	Remap(capacity int) error
	Sync(off, n int) error
	Advise(pattern mmap.AccessPattern) error
	Close() error
}

// Array is a persistent, growable array of fixed-size records backed by a
// single memory-mapped file.
//
// An Array is not safe for concurrent use.
type Array[T any] struct {
	path   string
	layout Layout[T]
	size   int
	def    []byte
	body   int64
	n      int

	lf    *lockfile.File
	m     mapping
	dirty *pageset.Set
	// synced is the file length at the last fsync.
	synced int64
	state  state

	opts   options
	logger *Logger
}

// HeaderInfo describes the header of an open file.
type HeaderInfo[T any] struct {
	Magic         Magic
	FormatVersion Version
	DataVersion   Version
	RecordSize    int
	HeaderSize    int
	PaddingLength int
	BodyOffset    int64
	// Default is the record stored in the file's header.
	Default T
	// Mismatches lists header fields that differ from what Open was given.
	Mismatches []HeaderMismatch
}

// Open opens the array file at path, creating it if needed.
//
// A new file gets a header built from magic, dataVersion and the layout's
// default record. An existing file must carry the same magic, the host's byte
// order and a body of whole records. Differences in format version, data
// version or default record are logged and reported by Header unless
// WithStrictVersions is set.
//
// The returned Array holds an exclusive lock on the file until Close.
func Open[T any](path string, magic Magic, dataVersion Version, layout Layout[T], optFns ...Option) (_ *Array[T], err error) {
	start := time.Now()
	o := applyOptions(optFns)
	ctx := context.Background()

	defer func() {
		o.metricsCollector.RecordOpen(time.Since(start), err)
		if err != nil {
			o.logger.LogOpen(ctx, path, false, 0, err)
		}
	}()

	if layout == nil {
		return nil, fmt.Errorf("%w: nil layout", ErrInvalidLayout)
	}
	size := layout.Size()
	if err := header.CheckRecordSize(size); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if c, ok := layout.(RecordChecker[T]); ok {
		if err := c.Check(layout.Default()); err != nil {
			return nil, fmt.Errorf("%w: default: %w", ErrInvalidLayout, err)
		}
	}
	def := make([]byte, size)
	layout.Encode(def, layout.Default())

	lf, err := lockfile.Open(path, lockfile.Spec{
		Magic:       magic,
		DataVersion: dataVersion,
		Default:     def,
	}, lockfile.Options{
		FS:       o.fsys,
		NoCreate: !o.create,
		Perm:     o.fileMode,
		Strict:   o.strictVersions,
	})
	if err != nil {
		return nil, err
	}

	a := &Array[T]{
		path:   path,
		layout: layout,
		size:   size,
		def:    def,
		body:   lf.BodyOffset(),
		lf:     lf,
		dirty:  pageset.New(os.Getpagesize()),
		synced: lf.Length(),
		opts:   o,
		logger: o.logger.WithPath(path),
	}
	a.n = int((lf.Length() - a.body) / int64(size))

	for _, m := range lf.Report().Mismatches {
		a.logger.LogHeaderAdvisory(ctx, path, m.Field, m.Want, m.Got)
	}

	w, err := mmap.MapFile(lf.Fd(), a.reserve(lf.Length()))
	if err != nil {
		_ = lf.Close()
		return nil, ioError("mmap", path, err)
	}
	a.m = w
	if o.accessPattern != AccessDefault {
		if err := w.Advise(o.accessPattern); err != nil {
			a.logger.WarnContext(ctx, "madvise failed", "pattern", o.accessPattern.String(), "error", err)
		}
	}

	a.logger.LogOpen(ctx, path, lf.Created(), a.n, nil)
	return a, nil
}

// Len returns the number of records. After Close it reports the length at
// the time of closing.
func (a *Array[T]) Len() int { return a.n }

// Cap returns the number of records that fit without a remap. After Close
// it equals Len.
func (a *Array[T]) Cap() int {
	if a.state != stateOpen {
		return a.n
	}
	return int(max(int64(a.m.Capacity())-a.body, 0) / int64(a.size))
}

// Path returns the path the array was opened with.
func (a *Array[T]) Path() string { return a.path }

// Created reports whether Open created the file.
func (a *Array[T]) Created() bool { return a.lf.Created() }

// Header returns the header in effect for this file, or the zero value
// once the array is closed.
func (a *Array[T]) Header() HeaderInfo[T] {
	if a.state == stateClosed {
		return HeaderInfo[T]{}
	}
	h := a.lf.Header()
	return HeaderInfo[T]{
		Magic:         h.Magic,
		FormatVersion: h.FormatVersion,
		DataVersion:   h.DataVersion,
		RecordSize:    a.size,
		HeaderSize:    h.Size(),
		PaddingLength: int(h.PaddingLength),
		BodyOffset:    h.BodyOffset(),
		Default:       a.layout.Decode(h.Default),
		Mismatches:    a.lf.Report().Mismatches,
	}
}

// Get returns record i.
func (a *Array[T]) Get(i int) (T, error) {
	var zero T
	if err := a.check(); err != nil {
		return zero, err
	}
	if err := a.checkIndex(i); err != nil {
		return zero, err
	}
	return a.decodeAt(a.offset(i)), nil
}

// Set overwrites record i.
func (a *Array[T]) Set(i int, v T) error {
	if err := a.check(); err != nil {
		return err
	}
	if err := a.checkIndex(i); err != nil {
		return err
	}
	if err := a.checkRecord(v); err != nil {
		return err
	}
	a.encodeAt(a.offset(i), v)
	return nil
}

// Append adds v after the last record.
func (a *Array[T]) Append(v T) (err error) {
	if err := a.check(); err != nil {
		return err
	}
	if err := a.checkRecord(v); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		a.opts.metricsCollector.RecordAppend(1, time.Since(start), err)
	}()

	off := a.lf.Length()
	if err := a.setLength(off + int64(a.size)); err != nil {
		return err
	}
	a.encodeAt(off, v)
	a.n++
	return nil
}

// AppendSlice adds vs after the last record with a single resize.
func (a *Array[T]) AppendSlice(vs ...T) (err error) {
	if err := a.check(); err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}
	for _, v := range vs {
		if err := a.checkRecord(v); err != nil {
			return err
		}
	}
	start := time.Now()
	defer func() {
		a.opts.metricsCollector.RecordAppend(len(vs), time.Since(start), err)
	}()

	off := a.lf.Length()
	if err := a.setLength(off + int64(len(vs))*int64(a.size)); err != nil {
		return err
	}
	for i, v := range vs {
		a.encodeAt(off+int64(i)*int64(a.size), v)
	}
	a.n += len(vs)
	return nil
}

// Truncate removes every record at index n and beyond.
// n greater than Len is an error.
func (a *Array[T]) Truncate(n int) (err error) {
	if err := a.check(); err != nil {
		return err
	}
	if n < 0 || n > a.n {
		return fmt.Errorf("%w: truncate to %d, len %d", ErrIndexOutOfBounds, n, a.n)
	}
	if n == a.n {
		return nil
	}
	removed := a.n - n
	defer func() {
		a.opts.metricsCollector.RecordTruncate(removed, err)
	}()

	if err := a.setLength(a.offset(n)); err != nil {
		return err
	}
	a.n = n
	return nil
}

// Resize sets the number of records to n. New records hold the layout's
// default value.
func (a *Array[T]) Resize(n int) error {
	if err := a.check(); err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: resize to %d", ErrIndexOutOfBounds, n)
	}
	if n <= a.n {
		return a.Truncate(n)
	}

	off := a.lf.Length()
	if err := a.setLength(a.offset(n)); err != nil {
		return err
	}
	// Grown bytes read as zero.
	if !isZero(a.def) {
		buf := a.m.Bytes()
		for i := a.n; i < n; i++ {
			copy(buf[a.offset(i):], a.def)
		}
		a.dirty.Mark(off, a.offset(n)-off)
	}
	a.n = n
	return nil
}

// Flush writes modified pages back to the file and, if the file length
// changed since the last flush, syncs the file metadata. Flushing an
// unmodified array does nothing.
func (a *Array[T]) Flush() (err error) {
	if err := a.check(); err != nil {
		return err
	}
	start := time.Now()
	pages := a.dirty.Len()
	defer func() {
		a.opts.metricsCollector.RecordFlush(pages, time.Since(start), err)
		a.logger.LogFlush(context.Background(), pages, time.Since(start), err)
	}()

	length := a.lf.Length()
	for r := range a.dirty.Ranges() {
		end := min(r.Off+r.Len, length)
		if r.Off >= end {
			continue
		}
		if err := a.m.Sync(int(r.Off), int(end-r.Off)); err != nil {
			return ioError("msync", a.path, err)
		}
	}
	a.dirty.Clear()

	if length != a.synced {
		if err := a.lf.Sync(); err != nil {
			return err
		}
		a.synced = length
	}
	return nil
}

// Close releases the mapping, the lock and the descriptor. It is idempotent.
// Unflushed writes stay in the page cache unless WithFlushOnClose is set.
func (a *Array[T]) Close() error {
	if a.state == stateClosed {
		return nil
	}
	var errs []error
	if a.opts.flushOnClose && a.state == stateOpen {
		errs = append(errs, a.Flush())
	}
	a.state = stateClosed

	if err := a.m.Close(); err != nil {
		errs = append(errs, ioError("munmap", a.path, err))
	}
	errs = append(errs, a.lf.Close())

	err := errors.Join(errs...)
	a.logger.LogClose(context.Background(), a.path, err)
	return err
}

// All returns an iterator over index and record pairs.
// Iteration stops early if the array is closed.
func (a *Array[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < a.n && a.state == stateOpen; i++ {
			if !yield(i, a.decodeAt(a.offset(i))) {
				return
			}
		}
	}
}

func (a *Array[T]) check() error {
	switch a.state {
	case stateClosed:
		return ErrClosed
	case stateBroken:
		return ErrBroken
	}
	return nil
}

func (a *Array[T]) checkIndex(i int) error {
	if i < 0 || i >= a.n {
		return fmt.Errorf("%w: index %d, len %d", ErrIndexOutOfBounds, i, a.n)
	}
	return nil
}

func (a *Array[T]) checkRecord(v T) error {
	if c, ok := a.layout.(RecordChecker[T]); ok {
		return c.Check(v)
	}
	return nil
}

func (a *Array[T]) offset(i int) int64 {
	return a.body + int64(i)*int64(a.size)
}

func (a *Array[T]) decodeAt(off int64) T {
	return a.layout.Decode(a.m.Bytes()[off : off+int64(a.size)])
}

func (a *Array[T]) encodeAt(off int64, v T) {
	a.layout.Encode(a.m.Bytes()[off:off+int64(a.size)], v)
	a.dirty.Mark(off, int64(a.size))
}

// contents returns the mapped bytes of the whole file.
func (a *Array[T]) contents() []byte {
	return a.m.Bytes()[:a.lf.Length()]
}

// setLength moves the file to newLen bytes: truncate, then remap if the
// mapping no longer fits. On failure the previous length and mapping are
// restored, or the array is marked broken if that fails too.
func (a *Array[T]) setLength(newLen int64) error {
	oldLen := a.lf.Length()
	if err := a.lf.Resize(newLen); err != nil {
		return err
	}

	oldCap := a.m.Capacity()
	newCap := oldCap
	switch {
	case newLen > int64(oldCap):
		newCap = a.grow(newLen)
	case int64(oldCap) > shrinkRatio*max(newLen, int64(a.opts.minReserve)):
		newCap = a.reserve(newLen)
	}

	if newCap != oldCap {
		if err := a.remap(oldCap, newCap); err != nil {
			a.rollback(oldLen, oldCap)
			return err
		}
	}
	if newLen < oldLen {
		a.dirty.Clip(newLen)
	}
	return nil
}

func (a *Array[T]) remap(oldCap, newCap int) error {
	err := a.m.Remap(newCap)
	a.opts.metricsCollector.RecordRemap(oldCap, newCap, err)
	a.logger.LogRemap(context.Background(), oldCap, newCap, err)
	return ioError("mmap", a.path, err)
}

func (a *Array[T]) rollback(oldLen int64, oldCap int) {
	ctx := context.Background()
	if err := a.lf.Resize(oldLen); err != nil {
		a.state = stateBroken
		a.logger.ErrorContext(ctx, "array broken: cannot restore file length", "length", oldLen, "error", err)
		return
	}
	if a.m.Mapped() {
		return
	}
	if err := a.m.Remap(oldCap); err != nil {
		a.state = stateBroken
		a.logger.ErrorContext(ctx, "array broken: cannot restore mapping", "capacity", oldCap, "error", err)
	}
}

// reserve returns the mapping capacity for a file of length bytes.
func (a *Array[T]) reserve(length int64) int {
	return pageAlign(max(length, int64(a.opts.minReserve)))
}

// grow returns a capacity of at least need bytes, growing geometrically.
func (a *Array[T]) grow(need int64) int {
	c := int64(float64(a.m.Capacity()) * a.opts.growthFactor)
	return pageAlign(max(c, need, int64(a.opts.minReserve)))
}

func pageAlign(n int64) int {
	page := int64(os.Getpagesize())
	if rem := n % page; rem != 0 {
		n += page - rem
	}
	return int(n)
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
