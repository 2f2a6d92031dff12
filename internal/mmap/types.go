package mmap

import "errors"

// AccessPattern is an madvise hint applied to a mapping.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	AccessSequential
	AccessRandom
	AccessWillNeed
	AccessDontNeed
)

var patternNames = [...]string{
	AccessDefault:    "default",
	AccessSequential: "sequential",
	AccessRandom:     "random",
	AccessWillNeed:   "willneed",
	AccessDontNeed:   "dontneed",
}

func (p AccessPattern) valid() bool { return p >= 0 && int(p) < len(patternNames) }

func (p AccessPattern) String() string {
	if !p.valid() {
		return "default"
	}
	return patternNames[p]
}

var (
	// ErrClosed is returned by accessors of a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for a non-positive or oversized length.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrOutOfBounds is returned for ranges outside the mapping.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
	// ErrInvalidOffset is returned for negative offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
	// ErrUnmapped is returned by a Writable whose last Remap failed.
	ErrUnmapped = errors.New("mmap: not mapped")
)
