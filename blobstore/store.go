package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrExists is returned by conditional writes when the target already exists.
var ErrExists = os.ErrExist

// BlobStore stores immutable, named blobs. Names are slash separated.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create starts writing a blob. The blob becomes visible under name
	// only when the returned WritableBlob is closed without error.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a whole blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes at off with io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over at most n bytes starting at off.
	ReadRange(ctx context.Context, off, n int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a blob being written.
type WritableBlob interface {
	io.WriteCloser
	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// Abortable is an optional interface for WritableBlobs that can discard a
// write without publishing it.
type Abortable interface {
	Abort() error
}

// Abort discards w. Blobs that cannot abort are closed, which may publish
// the partial content; callers should then delete it.
func Abort(w WritableBlob) (published bool, err error) {
	if a, ok := w.(Abortable); ok {
		return false, a.Abort()
	}
	return true, w.Close()
}

// ConditionalPutter is an optional interface for stores that can create a
// blob only if no blob with that name exists yet.
type ConditionalPutter interface {
	// PutIfNotExists returns an error satisfying errors.Is(err, ErrExists)
	// when name is taken.
	PutIfNotExists(ctx context.Context, name string, data []byte) error
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// ReadAll reads a whole blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}

	buf := make([]byte, b.Size())
	n, err := b.ReadAt(ctx, buf, 0)
	if err == io.EOF && int64(n) == b.Size() {
		err = nil
	}
	return buf[:n], err
}
