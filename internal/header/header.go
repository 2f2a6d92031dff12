package header

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

const (
	// MagicSize is the length of the magic tag in bytes.
	MagicSize = 8
	// VersionSize is the length of a version triple in bytes.
	VersionSize = 3
	// EndiannessMarker is written verbatim in native byte order.
	EndiannessMarker uint16 = 0x1234
	// PageSize is the boundary the record body is aligned to.
	PageSize = 4096

	offMagic         = 0
	offMarker        = 8
	offFormatVersion = 10
	offDataVersion   = 13
	offDefault       = 16
	paddingFieldSize = 2

	// fixedSize is the header size without the default record.
	fixedSize = offDefault + paddingFieldSize
)

// FormatVersion is the container format version written into new files.
// Bump it whenever the header layout or padding rules change.
var FormatVersion = Version{0, 1, 0}

// ErrInvalidRecordSize is returned for record sizes the format cannot hold.
var ErrInvalidRecordSize = errors.New("header: invalid record size")

// Magic is the caller-chosen tag identifying a file's logical format family.
type Magic [MagicSize]byte

// String returns the magic as a quoted string.
func (m Magic) String() string { return fmt.Sprintf("%q", m[:]) }

// Version is a three-component version number.
type Version [VersionSize]byte

// String returns the version in dotted form.
func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2]) }

// Header is the decoded form of the on-disk header.
type Header struct {
	Magic         Magic
	Marker        uint16
	FormatVersion Version
	DataVersion   Version
	Default       []byte
	PaddingLength uint16
}

// Size returns the encoded header size for the given record size.
func Size(recordSize int) int {
	return fixedSize + recordSize
}

// PaddingLength returns the zero fill needed after a header of headerSize
// bytes so that the body starts on a page boundary.
func PaddingLength(headerSize int) int {
	return (PageSize - headerSize%PageSize) % PageSize
}

// BodyOffset returns the file offset of the first record.
func BodyOffset(recordSize int) int64 {
	hs := Size(recordSize)
	return int64(hs + PaddingLength(hs))
}

// CheckRecordSize reports whether recordSize can be stored in the format.
func CheckRecordSize(recordSize int) error {
	if recordSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRecordSize, recordSize)
	}
	if int64(recordSize) > int64(1)<<40 {
		return fmt.Errorf("%w: %d exceeds limit", ErrInvalidRecordSize, recordSize)
	}
	return nil
}

// New builds the header for a new file. defaultRecord fixes the record size.
func New(magic Magic, dataVersion Version, defaultRecord []byte) Header {
	def := make([]byte, len(defaultRecord))
	copy(def, defaultRecord)
	return Header{
		Magic:         magic,
		Marker:        EndiannessMarker,
		FormatVersion: FormatVersion,
		DataVersion:   dataVersion,
		Default:       def,
		PaddingLength: uint16(PaddingLength(Size(len(def)))),
	}
}

// Size returns the encoded size of h.
func (h Header) Size() int {
	return Size(len(h.Default))
}

// BodyOffset returns the file offset of the first record according to h.
func (h Header) BodyOffset() int64 {
	return int64(h.Size()) + int64(h.PaddingLength)
}

// Encode returns exactly h.Size() bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, h.Size())
	copy(buf[offMagic:offMagic+MagicSize], h.Magic[:])
	binary.NativeEndian.PutUint16(buf[offMarker:], h.Marker)
	copy(buf[offFormatVersion:offFormatVersion+VersionSize], h.FormatVersion[:])
	copy(buf[offDataVersion:offDataVersion+VersionSize], h.DataVersion[:])
	copy(buf[offDefault:offDefault+len(h.Default)], h.Default)
	binary.NativeEndian.PutUint16(buf[offDefault+len(h.Default):], h.PaddingLength)
	return buf
}

// Decode parses a header holding records of recordSize bytes.
// It checks only that enough bytes are present; see Validate.
func Decode(b []byte, recordSize int) (Header, error) {
	if err := CheckRecordSize(recordSize); err != nil {
		return Header{}, err
	}
	size := Size(recordSize)
	if len(b) < size {
		return Header{}, &CorruptError{
			Kind:   Truncated,
			Detail: fmt.Sprintf("have %d bytes, need %d", len(b), size),
		}
	}

	var h Header
	copy(h.Magic[:], b[offMagic:offMagic+MagicSize])
	h.Marker = binary.NativeEndian.Uint16(b[offMarker:])
	copy(h.FormatVersion[:], b[offFormatVersion:offFormatVersion+VersionSize])
	copy(h.DataVersion[:], b[offDataVersion:offDataVersion+VersionSize])
	h.Default = make([]byte, recordSize)
	copy(h.Default, b[offDefault:offDefault+recordSize])
	h.PaddingLength = binary.NativeEndian.Uint16(b[offDefault+recordSize:])
	return h, nil
}

// Expect is what the opener of an existing file requires of its header.
type Expect struct {
	Magic       Magic
	DataVersion Version
	// Default is the caller's current default record; its length is the record size.
	Default []byte
}

// Validate decodes onDisk and checks it against want.
//
// Checks run in order: magic, endianness marker, padding. A failure of any of
// these is returned as a *CorruptError. Version and default-record
// differences do not fail validation; they are collected in the Report.
func Validate(onDisk []byte, want Expect) (Report, error) {
	h, err := Decode(onDisk, len(want.Default))
	if err != nil {
		return Report{}, err
	}

	if h.Magic != want.Magic {
		return Report{}, &CorruptError{
			Kind:   MagicMismatch,
			Detail: fmt.Sprintf("want %s, got %s", want.Magic, h.Magic),
		}
	}

	if h.Marker != EndiannessMarker {
		if bits.ReverseBytes16(h.Marker) == EndiannessMarker {
			return Report{}, &CorruptError{
				Kind:   WrongEndianness,
				Detail: fmt.Sprintf("marker %#04x was written with the other byte order", h.Marker),
			}
		}
		return Report{}, &CorruptError{
			Kind:   EndiannessInvalid,
			Detail: fmt.Sprintf("marker %#04x", h.Marker),
		}
	}

	if wantPad := PaddingLength(h.Size()); int(h.PaddingLength) != wantPad {
		return Report{}, &CorruptError{
			Kind:   PaddingMismatch,
			Detail: fmt.Sprintf("padding %d, want %d for record size %d", h.PaddingLength, wantPad, len(want.Default)),
		}
	}

	r := Report{Found: h}
	if h.FormatVersion != FormatVersion {
		r.Mismatches = append(r.Mismatches, Mismatch{
			Field: "format_version", Want: FormatVersion.String(), Got: h.FormatVersion.String(),
		})
	}
	if h.DataVersion != want.DataVersion {
		r.Mismatches = append(r.Mismatches, Mismatch{
			Field: "data_version", Want: want.DataVersion.String(), Got: h.DataVersion.String(),
		})
	}
	if !bytes.Equal(h.Default, want.Default) {
		r.Mismatches = append(r.Mismatches, Mismatch{
			Field: "default_record", Want: fmt.Sprintf("%x", want.Default), Got: fmt.Sprintf("%x", h.Default),
		})
	}
	return r, nil
}

// Mismatch describes one advisory header difference.
type Mismatch struct {
	Field string
	Want  string
	Got   string
}

// Report is the result of a successful Validate.
type Report struct {
	// Found is the decoded on-disk header.
	Found Header
	// Mismatches lists advisory differences in the order they were checked.
	Mismatches []Mismatch
}

// VersionMismatch reports whether the format or data version differs.
func (r Report) VersionMismatch() bool {
	for _, m := range r.Mismatches {
		if m.Field == "format_version" || m.Field == "data_version" {
			return true
		}
	}
	return false
}

// Err returns a VersionMismatch CorruptError if any version differs.
func (r Report) Err() error {
	if !r.VersionMismatch() {
		return nil
	}
	var detail bytes.Buffer
	for _, m := range r.Mismatches {
		if m.Field == "default_record" {
			continue
		}
		if detail.Len() > 0 {
			detail.WriteString(", ")
		}
		fmt.Fprintf(&detail, "%s want %s got %s", m.Field, m.Want, m.Got)
	}
	return &CorruptError{Kind: VersionMismatch, Detail: detail.String()}
}
