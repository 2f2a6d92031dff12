// Package mmarray provides a persistent, growable array of fixed-size records
// stored in a single memory-mapped file.
//
// The in-memory layout and the on-disk layout are the same bytes: records are
// read and written directly through a shared mapping and reach the file when
// the kernel writes the pages back or when Flush is called.
//
// # Quick Start
//
//	magic := mmarray.Magic{'T', 'E', 'S', 'T', 'F', 'I', 'L', 'E'}
//	arr, err := mmarray.Open("data.arr", magic, mmarray.Version{0, 1, 0}, mmarray.Uint16(0))
//	if err != nil { ... }
//	defer arr.Close()
//
//	_ = arr.Append(5)
//	_ = arr.Append(6)
//	_ = arr.Flush()
//
// # File Format
//
// A file starts with a header, zero padding up to the next 4096-byte boundary,
// and then the records back to back:
//
//	offset 0      magic (8 bytes)
//	offset 8      endianness marker 0x1234 (2 bytes)
//	offset 10     container format version (3 bytes)
//	offset 13     caller data version (3 bytes)
//	offset 16     default record (R bytes)
//	offset 16+R   padding length (2 bytes)
//	...           zero padding
//	body          records, R bytes each
//
// All integers use the byte order of the host that created the file. Opening
// a file written on a host of the other byte order fails with
// ErrWrongEndianness; files are not portable across architectures.
//
// # Durability
//
// The file length always equals the header, padding and records. Growing
// truncates the file first and writes the new record only after the mapping
// covers it, so a crash leaves a file with whole records only. Record
// contents are durable after Flush.
//
// # Exclusivity
//
// An open Array holds a non-blocking exclusive flock(2) on its file, and a
// process-wide registry rejects a second handle on the same file from the same
// process. Both fail fast with ErrLockContention. The lock is advisory: other
// programs that ignore it can still modify the file.
//
// # Snapshots
//
// Snapshot copies the file to a blobstore.BlobStore, compressed and
// checksummed, and Restore recreates a file from it. See Snapshot.
package mmarray
