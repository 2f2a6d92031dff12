package mmarray

import (
	"errors"

	"github.com/hupe1980/mmarray/internal/header"
	"github.com/hupe1980/mmarray/internal/lockfile"
)

var (
	// ErrLockContention is returned by Open when another handle, in this or
	// another process, holds the file.
	ErrLockContention = lockfile.ErrLockContention

	// ErrBodySizeMismatch is returned by Open when the body is not a whole
	// number of records or is shorter than the header padding.
	ErrBodySizeMismatch = lockfile.ErrBodySizeMismatch

	// ErrIndexOutOfBounds is returned for an index at or past Len.
	// The array stays usable.
	ErrIndexOutOfBounds = errors.New("mmarray: index out of bounds")

	// ErrClosed is returned by every operation on a closed array except Close.
	ErrClosed = errors.New("mmarray: array is closed")

	// ErrBroken is returned after a failed resize could not restore the
	// previous mapping. Only Close is valid.
	ErrBroken = errors.New("mmarray: array is broken, close and reopen it")

	// ErrInvalidLayout is returned by Open for a nil layout or an unusable record size.
	ErrInvalidLayout = errors.New("mmarray: invalid layout")

	// ErrInvalidRecord is returned when a layout's Check rejects a value.
	// Nothing is written and Len is unchanged.
	ErrInvalidRecord = errors.New("mmarray: invalid record")
)

// ErrHeaderCorrupt matches every *HeaderCorruptError.
var ErrHeaderCorrupt = header.ErrCorrupt

// Per-kind matchers for errors.Is.
var (
	ErrMagicMismatch     = header.ErrMagicMismatch
	ErrEndiannessInvalid = header.ErrEndiannessInvalid
	ErrWrongEndianness   = header.ErrWrongEndianness
	ErrTruncated         = header.ErrTruncated
	ErrPaddingMismatch   = header.ErrPaddingMismatch
	ErrVersionMismatch   = header.ErrVersionMismatch
)

// HeaderCorruptError reports a header that failed validation.
//
// Use errors.As to inspect the Kind.
type HeaderCorruptError = header.CorruptError

// CorruptionKind classifies a HeaderCorruptError.
type CorruptionKind = header.Kind

const (
	MagicMismatch     = header.MagicMismatch
	EndiannessInvalid = header.EndiannessInvalid
	WrongEndianness   = header.WrongEndianness
	Truncated         = header.Truncated
	PaddingMismatch   = header.PaddingMismatch
	VersionMismatch   = header.VersionMismatch
)

// IOError is a failed platform I/O operation.
//
// The underlying error can be accessed via errors.Unwrap.
type IOError = lockfile.IOError

func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
