// Package mmap provides memory-mapped file access.
//
// # Overview
//
// Two kinds of mapping are provided:
//
//   - [Mapping]: a read-only view of a whole file, opened by path. Used for
//     zero-copy reads of immutable blobs.
//   - [Writable]: a shared read/write mapping over an already open descriptor.
//     Its capacity may exceed the file length so that a growing file does not
//     need a new mapping for every resize.
//
// # Usage
//
//	w, err := mmap.MapFile(f.Fd(), capacity)
//	if err != nil { ... }
//	defer w.Close()
//
//	copy(w.Bytes()[off:], record)
//	_ = w.Sync(off, len(record))
//
//	// Grow the reservation. The old view is released before the new one exists.
//	if err := w.Remap(2 * capacity); err != nil { ... }
//
// # Platform Support
//
// Unix only (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2) via
// golang.org/x/sys/unix.
//
// # Thread Safety
//
// Mapping is safe for concurrent read access and Close is
// idempotent. Writable is not safe for concurrent use: Remap invalidates every
// slice previously returned by Bytes.
//
// # Beyond end of file
//
// Pages of a Writable that lie past the end of the file are reserved address
// space only. Touching them raises SIGBUS; callers must bound every access by
// the file length, not by Capacity.
package mmap
