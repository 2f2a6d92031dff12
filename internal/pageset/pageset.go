// Package pageset tracks which pages of a mapped file hold unflushed writes.
package pageset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Range is a run of whole pages in bytes.
type Range struct {
	Off int64
	Len int64
}

// Set is a set of dirty page indices. It is not safe for concurrent use.
type Set struct {
	pageSize int64
	rb       *roaring.Bitmap
}

// New returns an empty set for pages of pageSize bytes.
func New(pageSize int) *Set {
	if pageSize <= 0 {
		panic("pageset: page size must be positive")
	}
	return &Set{pageSize: int64(pageSize), rb: roaring.New()}
}

// PageSize returns the page size in bytes.
func (s *Set) PageSize() int { return int(s.pageSize) }

// Mark records every page touched by the byte range [off, off+n).
func (s *Set) Mark(off, n int64) {
	if n <= 0 || off < 0 {
		return
	}
	first := off / s.pageSize
	last := (off + n - 1) / s.pageSize
	s.rb.AddRange(uint64(first), uint64(last)+1)
}

// Contains reports whether the page holding byte off is dirty.
func (s *Set) Contains(off int64) bool {
	if off < 0 {
		return false
	}
	return s.rb.Contains(uint32(off / s.pageSize))
}

// Clip forgets pages that lie entirely at or beyond length.
func (s *Set) Clip(length int64) {
	if length < 0 {
		length = 0
	}
	first := (length + s.pageSize - 1) / s.pageSize
	s.rb.RemoveRange(uint64(first), uint64(1)<<32)
}

// Len returns the number of dirty pages.
func (s *Set) Len() int { return int(s.rb.GetCardinality()) }

// Empty reports whether no page is dirty.
func (s *Set) Empty() bool { return s.rb.IsEmpty() }

// Clear marks every page clean.
func (s *Set) Clear() { s.rb.Clear() }

// Ranges yields the dirty pages in ascending order, adjacent pages coalesced.
func (s *Set) Ranges() iter.Seq[Range] {
	return func(yield func(Range) bool) {
		it := s.rb.Iterator()
		if !it.HasNext() {
			return
		}
		start := it.Next()
		end := start
		for it.HasNext() {
			p := it.Next()
			if p == end+1 {
				end = p
				continue
			}
			if !yield(s.span(start, end)) {
				return
			}
			start, end = p, p
		}
		yield(s.span(start, end))
	}
}

func (s *Set) span(first, last uint32) Range {
	return Range{
		Off: int64(first) * s.pageSize,
		Len: (int64(last) - int64(first) + 1) * s.pageSize,
	}
}
