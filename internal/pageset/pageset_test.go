package pageset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMark(t *testing.T) {
	s := New(4096)
	assert.True(t, s.Empty())

	s.Mark(4096, 2)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(4097))
	assert.False(t, s.Contains(0))

	// Straddles pages 1 and 2.
	s.Mark(8190, 4)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(8192))

	s.Mark(0, 0)
	s.Mark(-1, 10)
	assert.Equal(t, 2, s.Len())
}

func TestRanges_Coalesce(t *testing.T) {
	s := New(4096)
	s.Mark(0, 1)
	s.Mark(4096, 1)
	s.Mark(5*4096, 3*4096)
	s.Mark(20*4096, 1)

	got := slices.Collect(s.Ranges())
	assert.Equal(t, []Range{
		{Off: 0, Len: 2 * 4096},
		{Off: 5 * 4096, Len: 3 * 4096},
		{Off: 20 * 4096, Len: 4096},
	}, got)
}

func TestRanges_EarlyStop(t *testing.T) {
	s := New(4096)
	s.Mark(0, 1)
	s.Mark(3*4096, 1)

	var n int
	for range s.Ranges() {
		n++
		break
	}
	assert.Equal(t, 1, n)
	assert.Empty(t, slices.Collect(New(4096).Ranges()))
}

func TestClip(t *testing.T) {
	s := New(4096)
	s.Mark(0, 10*4096)
	require.Equal(t, 10, s.Len())

	// Page 2 still holds bytes below the cut.
	s.Clip(2*4096 + 1)
	assert.Equal(t, 3, s.Len())

	s.Clip(2 * 4096)
	assert.Equal(t, 2, s.Len())

	s.Clip(0)
	assert.True(t, s.Empty())
}

func TestClear(t *testing.T) {
	s := New(512)
	assert.Equal(t, 512, s.PageSize())
	s.Mark(0, 4096)
	assert.Equal(t, 8, s.Len())
	s.Clear()
	assert.True(t, s.Empty())
}

func TestNew_PanicsOnBadPageSize(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}
