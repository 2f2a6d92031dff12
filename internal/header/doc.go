// Package header implements the fixed-layout prologue of an array file.
//
// The header is stored at offset 0 in the writer's native byte order:
//
//	offset  size  field
//	0       8     magic bytes (caller-defined tag)
//	8       2     endianness marker (0x1234)
//	10      3     container format version
//	13      3     caller data-schema version
//	16      R     default record (R = record size)
//	16+R    2     padding length
//
// The header is followed by PaddingLength zero bytes so that the record body
// starts on a PageSize boundary. Files are pinned to the byte order of the
// host that created them; a reader on a host of the other order gets a
// WrongEndianness error instead of garbage.
//
// Encoding never reinterprets memory as a struct: Encode and Decode copy
// between a Header value and a byte slice using the named offsets below.
package header
