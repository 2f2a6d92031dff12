package mmap

import "os"

// Writable is a shared read/write mapping over an open file descriptor.
//
// The mapping spans Capacity bytes starting at file offset 0. Capacity may be
// larger than the file; see the package documentation.
type Writable struct {
	fd     uintptr
	data   []byte
	advice AccessPattern
	closed bool
}

// MapFile maps capacity bytes of the file behind fd for reading and writing.
// The descriptor is not owned by the mapping and must outlive it.
func MapFile(fd uintptr, capacity int) (*Writable, error) {
	if capacity <= 0 {
		return nil, ErrInvalidSize
	}
	data, err := mapFD(fd, capacity, true)
	if err != nil {
		return nil, err
	}
	return &Writable{fd: fd, data: data}, nil
}

// Bytes returns the mapped memory, or nil if the mapping is closed or unmapped.
// The slice is invalidated by Remap and Close.
func (w *Writable) Bytes() []byte {
	if w.closed {
		return nil
	}
	return w.data
}

// Capacity returns the mapped length in bytes.
func (w *Writable) Capacity() int {
	return len(w.data)
}

// Mapped reports whether the mapping currently holds memory.
func (w *Writable) Mapped() bool {
	return !w.closed && w.data != nil
}

// Remap replaces the mapping with one of the given capacity.
//
// The old mapping is released before the new one is created so that two views
// of the same file region never coexist. If mapping fails, the Writable is left
// unmapped and every accessor reports ErrUnmapped until a later Remap succeeds.
func (w *Writable) Remap(capacity int) error {
	if w.closed {
		return ErrClosed
	}
	if capacity <= 0 {
		return ErrInvalidSize
	}
	if w.data != nil {
		if err := unmap(w.data); err != nil {
			return err
		}
		w.data = nil
	}
	data, err := mapFD(w.fd, capacity, true)
	if err != nil {
		return err
	}
	w.data = data
	if w.advice != AccessDefault {
		_ = madvise(w.data, w.advice)
	}
	return nil
}

// Sync writes the pages covering [off, off+n) back to the file and waits
// for completion. The range is widened to page boundaries.
func (w *Writable) Sync(off, n int) error {
	if w.closed {
		return ErrClosed
	}
	if w.data == nil {
		return ErrUnmapped
	}
	if off < 0 || n < 0 || off+n > len(w.data) {
		return ErrOutOfBounds
	}
	if n == 0 {
		return nil
	}
	page := os.Getpagesize()
	start := off - off%page
	end := off + n
	if rem := end % page; rem != 0 {
		end += page - rem
	}
	if end > len(w.data) {
		end = len(w.data)
	}
	return msync(w.data[start:end])
}

// Advise applies an access hint now and after every Remap.
func (w *Writable) Advise(pattern AccessPattern) error {
	if w.closed {
		return ErrClosed
	}
	w.advice = pattern
	if w.data == nil {
		return nil
	}
	return madvise(w.data, pattern)
}

// Close unmaps the memory. It is idempotent and leaves the descriptor open.
func (w *Writable) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.data == nil {
		return nil
	}
	data := w.data
	w.data = nil
	return unmap(data)
}
