package header

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMagic   = Magic{'T', 'E', 'S', 'T', 'F', 'I', 'L', 'E'}
	testVersion = Version{0, 1, 0}
)

func testExpect() Expect {
	return Expect{Magic: testMagic, DataVersion: testVersion, Default: []byte{1, 2}}
}

func TestSizeAndPadding(t *testing.T) {
	assert.Equal(t, 20, Size(2))
	assert.Equal(t, 4096-20, PaddingLength(20))
	assert.Equal(t, 0, PaddingLength(4096))
	assert.Equal(t, 4095, PaddingLength(4097))
	assert.Equal(t, int64(4096), BodyOffset(2))
	assert.Equal(t, int64(8192), BodyOffset(4096))

	for _, rs := range []int{1, 2, 7, 4078, 4079, 4080, 10000} {
		off := BodyOffset(rs)
		assert.Zero(t, off%PageSize, "record size %d", rs)
		assert.GreaterOrEqual(t, off, int64(Size(rs)))
	}
}

func TestCheckRecordSize(t *testing.T) {
	assert.NoError(t, CheckRecordSize(1))
	assert.ErrorIs(t, CheckRecordSize(0), ErrInvalidRecordSize)
	assert.ErrorIs(t, CheckRecordSize(-3), ErrInvalidRecordSize)
}

func TestEncodeLayout(t *testing.T) {
	h := New(testMagic, testVersion, []byte{1, 2})
	b := h.Encode()
	require.Len(t, b, 20)

	assert.Equal(t, []byte("TESTFILE"), b[0:8])
	assert.Equal(t, EndiannessMarker, binary.NativeEndian.Uint16(b[8:10]))
	assert.Equal(t, []byte{0, 1, 0}, b[10:13])
	assert.Equal(t, []byte{0, 1, 0}, b[13:16])
	assert.Equal(t, []byte{1, 2}, b[16:18])
	assert.Equal(t, uint16(4076), binary.NativeEndian.Uint16(b[18:20]))
	assert.Equal(t, int64(4096), h.BodyOffset())
}

func TestDecodeRoundTrip(t *testing.T) {
	h := New(testMagic, Version{3, 2, 1}, []byte{9, 8, 7, 6})
	got, err := Decode(h.Encode(), 4)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestNewCopiesDefault(t *testing.T) {
	def := []byte{1, 2}
	h := New(testMagic, testVersion, def)
	def[0] = 42
	assert.Equal(t, byte(1), h.Default[0])
}

func TestValidate_OK(t *testing.T) {
	b := New(testMagic, testVersion, []byte{1, 2}).Encode()
	r, err := Validate(b, testExpect())
	require.NoError(t, err)
	assert.Empty(t, r.Mismatches)
	assert.False(t, r.VersionMismatch())
	assert.NoError(t, r.Err())
	assert.Equal(t, testMagic, r.Found.Magic)
}

func TestValidate_MagicMismatch(t *testing.T) {
	for i := 0; i < MagicSize; i++ {
		b := New(testMagic, testVersion, []byte{1, 2}).Encode()
		b[i] ^= 0xFF
		_, err := Validate(b, testExpect())
		assert.ErrorIs(t, err, ErrMagicMismatch, "byte %d", i)
		assert.ErrorIs(t, err, ErrCorrupt)
	}
}

func TestValidate_WrongEndianness(t *testing.T) {
	b := New(testMagic, testVersion, []byte{1, 2}).Encode()
	b[8], b[9] = b[9], b[8]
	_, err := Validate(b, testExpect())
	assert.ErrorIs(t, err, ErrWrongEndianness)
	assert.NotErrorIs(t, err, ErrEndiannessInvalid)
}

func TestValidate_EndiannessInvalid(t *testing.T) {
	b := New(testMagic, testVersion, []byte{1, 2}).Encode()
	binary.NativeEndian.PutUint16(b[8:], 0xBEEF)
	_, err := Validate(b, testExpect())
	assert.ErrorIs(t, err, ErrEndiannessInvalid)

	var ce *CorruptError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, EndiannessInvalid, ce.Kind)
	assert.Contains(t, ce.Error(), "0xbeef")
}

func TestValidate_MagicCheckedBeforeMarker(t *testing.T) {
	b := New(testMagic, testVersion, []byte{1, 2}).Encode()
	b[0] = 'X'
	binary.NativeEndian.PutUint16(b[8:], 0)
	_, err := Validate(b, testExpect())
	assert.ErrorIs(t, err, ErrMagicMismatch)
}

func TestValidate_Truncated(t *testing.T) {
	b := New(testMagic, testVersion, []byte{1, 2}).Encode()
	_, err := Validate(b[:len(b)-1], testExpect())
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestValidate_RecordSizeMismatch(t *testing.T) {
	b := New(testMagic, testVersion, []byte{1, 2, 3}).Encode()
	// Reading a 3-byte-record header as 2-byte records picks up the
	// padding field at the wrong offset.
	_, err := Validate(b, testExpect())
	assert.ErrorIs(t, err, ErrPaddingMismatch)
}

func TestValidate_AdvisoryMismatches(t *testing.T) {
	h := New(testMagic, Version{0, 2, 0}, []byte{7, 7})
	h.FormatVersion = Version{9, 9, 9}

	r, err := Validate(h.Encode(), testExpect())
	require.NoError(t, err)
	require.Len(t, r.Mismatches, 3)
	assert.Equal(t, "format_version", r.Mismatches[0].Field)
	assert.Equal(t, "data_version", r.Mismatches[1].Field)
	assert.Equal(t, "0.1.0", r.Mismatches[1].Want)
	assert.Equal(t, "0.2.0", r.Mismatches[1].Got)
	assert.Equal(t, "default_record", r.Mismatches[2].Field)

	assert.True(t, r.VersionMismatch())
	assert.ErrorIs(t, r.Err(), ErrVersionMismatch)
}

func TestValidate_DefaultOnlyIsNotVersionMismatch(t *testing.T) {
	b := New(testMagic, testVersion, []byte{5, 5}).Encode()
	r, err := Validate(b, testExpect())
	require.NoError(t, err)
	assert.Len(t, r.Mismatches, 1)
	assert.False(t, r.VersionMismatch())
	assert.NoError(t, r.Err())
}

func TestCorruptError_Strings(t *testing.T) {
	assert.Equal(t, "header corrupt", ErrCorrupt.Error())
	assert.Equal(t, "header corrupt: truncated", ErrTruncated.Error())
	assert.Equal(t, "magic mismatch", MagicMismatch.String())
	assert.Equal(t, "unknown", Kind(200).String())
	assert.Equal(t, "0.1.0", testVersion.String())
	assert.Equal(t, `"TESTFILE"`, testMagic.String())
}
