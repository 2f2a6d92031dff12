package snapshot

import "errors"

var (
	// ErrNotFound is returned when no snapshot (or no snapshot with the
	// requested sequence) exists.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrCorrupt is returned when restored bytes do not match the manifest.
	ErrCorrupt = errors.New("snapshot: corrupt")
	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = errors.New("snapshot: unknown compression")
	// ErrInvalidName is returned for snapshot names that are not clean relative paths.
	ErrInvalidName = errors.New("snapshot: invalid name")
	// ErrConflict is returned when another writer committed the same
	// sequence first.
	ErrConflict = errors.New("snapshot: sequence already committed")
	// ErrUnsupportedVersion is returned for manifests written by a newer format.
	ErrUnsupportedVersion = errors.New("snapshot: unsupported manifest version")
)
