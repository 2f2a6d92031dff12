package mmarray

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Layout describes how a record of type T is stored.
//
// Size is fixed for the lifetime of a file. Encode and Decode are always
// called with a slice of exactly Size bytes; Decode must not retain src,
// which aliases mapped memory.
type Layout[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
	// Default is the record written into the header of a new file and
	// used to fill records added by Resize.
	Default() T
}

// RecordChecker is implemented by layouts that can reject a value before it
// is encoded.
type RecordChecker[T any] interface {
	Check(v T) error
}

// FuncLayout builds a Layout from closures.
type FuncLayout[T any] struct {
	RecordSize int
	EncodeFn   func(dst []byte, v T)
	DecodeFn   func(src []byte) T
	DefaultVal T
}

// Size returns RecordSize.
func (l FuncLayout[T]) Size() int { return l.RecordSize }

// Encode calls EncodeFn.
func (l FuncLayout[T]) Encode(dst []byte, v T) { l.EncodeFn(dst, v) }

// Decode calls DecodeFn.
func (l FuncLayout[T]) Decode(src []byte) T { return l.DecodeFn(src) }

// Default returns DefaultVal.
func (l FuncLayout[T]) Default() T { return l.DefaultVal }

type bytesLayout struct {
	def []byte
}

// Bytes returns a layout for raw records of n bytes. def is the default
// record; it is zero-padded or cut to n bytes. Values of any other length
// than n are rejected with ErrInvalidRecord.
func Bytes(n int, def []byte) Layout[[]byte] {
	d := make([]byte, max(n, 0))
	copy(d, def)
	return bytesLayout{def: d}
}

func (l bytesLayout) Size() int                   { return len(l.def) }
func (l bytesLayout) Encode(dst []byte, v []byte) { copy(dst, v); clear(dst[min(len(v), len(dst)):]) }
func (l bytesLayout) Decode(src []byte) []byte    { return append([]byte(nil), src...) }
func (l bytesLayout) Default() []byte             { return append([]byte(nil), l.def...) }

func (l bytesLayout) Check(v []byte) error {
	if len(v) != len(l.def) {
		return fmt.Errorf("%w: %d bytes, record size %d", ErrInvalidRecord, len(v), len(l.def))
	}
	return nil
}

// Numeric layouts store values in the host byte order.

// Uint8 returns a 1-byte layout with default def.
func Uint8(def uint8) Layout[uint8] {
	return FuncLayout[uint8]{
		RecordSize: 1,
		EncodeFn:   func(dst []byte, v uint8) { dst[0] = v },
		DecodeFn:   func(src []byte) uint8 { return src[0] },
		DefaultVal: def,
	}
}

// Int8 returns a 1-byte layout with default def.
func Int8(def int8) Layout[int8] {
	return FuncLayout[int8]{
		RecordSize: 1,
		EncodeFn:   func(dst []byte, v int8) { dst[0] = byte(v) },
		DecodeFn:   func(src []byte) int8 { return int8(src[0]) },
		DefaultVal: def,
	}
}

// Uint16 returns a 2-byte native-order layout with default def.
func Uint16(def uint16) Layout[uint16] {
	return FuncLayout[uint16]{
		RecordSize: 2,
		EncodeFn:   func(dst []byte, v uint16) { binary.NativeEndian.PutUint16(dst, v) },
		DecodeFn:   binary.NativeEndian.Uint16,
		DefaultVal: def,
	}
}

// Int16 returns a 2-byte native-order layout with default def.
func Int16(def int16) Layout[int16] {
	return FuncLayout[int16]{
		RecordSize: 2,
		EncodeFn:   func(dst []byte, v int16) { binary.NativeEndian.PutUint16(dst, uint16(v)) },
		DecodeFn:   func(src []byte) int16 { return int16(binary.NativeEndian.Uint16(src)) },
		DefaultVal: def,
	}
}

// Uint32 returns a 4-byte native-order layout with default def.
func Uint32(def uint32) Layout[uint32] {
	return FuncLayout[uint32]{
		RecordSize: 4,
		EncodeFn:   func(dst []byte, v uint32) { binary.NativeEndian.PutUint32(dst, v) },
		DecodeFn:   binary.NativeEndian.Uint32,
		DefaultVal: def,
	}
}

// Int32 returns a 4-byte native-order layout with default def.
func Int32(def int32) Layout[int32] {
	return FuncLayout[int32]{
		RecordSize: 4,
		EncodeFn:   func(dst []byte, v int32) { binary.NativeEndian.PutUint32(dst, uint32(v)) },
		DecodeFn:   func(src []byte) int32 { return int32(binary.NativeEndian.Uint32(src)) },
		DefaultVal: def,
	}
}

// Uint64 returns an 8-byte native-order layout with default def.
func Uint64(def uint64) Layout[uint64] {
	return FuncLayout[uint64]{
		RecordSize: 8,
		EncodeFn:   func(dst []byte, v uint64) { binary.NativeEndian.PutUint64(dst, v) },
		DecodeFn:   binary.NativeEndian.Uint64,
		DefaultVal: def,
	}
}

// Int64 returns an 8-byte native-order layout with default def.
func Int64(def int64) Layout[int64] {
	return FuncLayout[int64]{
		RecordSize: 8,
		EncodeFn:   func(dst []byte, v int64) { binary.NativeEndian.PutUint64(dst, uint64(v)) },
		DecodeFn:   func(src []byte) int64 { return int64(binary.NativeEndian.Uint64(src)) },
		DefaultVal: def,
	}
}

// Float32 returns a 4-byte layout of IEEE 754 bits in native order.
func Float32(def float32) Layout[float32] {
	return FuncLayout[float32]{
		RecordSize: 4,
		EncodeFn:   func(dst []byte, v float32) { binary.NativeEndian.PutUint32(dst, math.Float32bits(v)) },
		DecodeFn:   func(src []byte) float32 { return math.Float32frombits(binary.NativeEndian.Uint32(src)) },
		DefaultVal: def,
	}
}

// Float64 returns an 8-byte layout of IEEE 754 bits in native order.
func Float64(def float64) Layout[float64] {
	return FuncLayout[float64]{
		RecordSize: 8,
		EncodeFn:   func(dst []byte, v float64) { binary.NativeEndian.PutUint64(dst, math.Float64bits(v)) },
		DecodeFn:   func(src []byte) float64 { return math.Float64frombits(binary.NativeEndian.Uint64(src)) },
		DefaultVal: def,
	}
}
