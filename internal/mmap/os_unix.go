//go:build unix

package mmap

import (
	"errors"

	"golang.org/x/sys/unix"
)

var madvice = [...]int{
	AccessDefault:    unix.MADV_NORMAL,
	AccessSequential: unix.MADV_SEQUENTIAL,
	AccessRandom:     unix.MADV_RANDOM,
	AccessWillNeed:   unix.MADV_WILLNEED,
	AccessDontNeed:   unix.MADV_DONTNEED,
}

// mapFD maps size bytes of fd from offset 0 as MAP_SHARED, so stores reach
// the page cache of the file and are visible to other mappings of it.
func mapFD(fd uintptr, size int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(fd), 0, size, prot, unix.MAP_SHARED)
}

func unmap(data []byte) error { return unix.Munmap(data) }

func msync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

func madvise(data []byte, p AccessPattern) error {
	if len(data) == 0 || !p.valid() {
		return nil
	}
	// EINVAL only means the kernel refused the hint for this range.
	if err := unix.Madvise(data, madvice[p]); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}
