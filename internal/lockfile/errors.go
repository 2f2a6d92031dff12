package lockfile

import "errors"

var (
	// ErrLockContention is returned when another handle holds the lock.
	ErrLockContention = errors.New("lockfile: file is locked by another handle")
	// ErrBodySizeMismatch is returned when the body is not a whole number of records.
	ErrBodySizeMismatch = errors.New("lockfile: body size is not a multiple of the record size")
	// ErrClosed is returned by operations on a closed File.
	ErrClosed = errors.New("lockfile: file is closed")
)

// IOError is a failed platform I/O operation on an array file.
//
// The underlying error can be accessed via errors.Unwrap.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
