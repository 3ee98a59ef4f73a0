package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndLen(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("hello"))
	b.AppendCopy([]byte(" world"))
	assert.Equal(t, 11, b.Len())
	assert.Equal(t, 2, b.NumSlices())
}

func TestBufferAppendSliceEmptyIsNoop(t *testing.T) {
	b := New()
	b.AppendSlice(nil)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.NumSlices())
}

func TestBufferTrimFrontWithinSlice(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abcdef"))
	b.TrimFront(2)
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, "cdef", string(b.SliceAt(0)))
}

func TestBufferTrimFrontAcrossSlices(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abc"))
	b.AppendCopy([]byte("def"))
	b.TrimFront(4)
	require.Equal(t, 1, b.NumSlices())
	assert.Equal(t, "ef", string(b.SliceAt(0)))
}

func TestBufferTrimFrontOutOfRangePanics(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abc"))
	assert.Panics(t, func() { b.TrimFront(10) })
}

func TestBufferTruncateTo(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abc"))
	b.AppendCopy([]byte("def"))
	b.TruncateTo(4)
	assert.Equal(t, 4, b.Len())
	require.Equal(t, 2, b.NumSlices())
	assert.Equal(t, "d", string(b.SliceAt(1)))
}

func TestBufferClear(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abc"))
	b.Clear()
	assert.Zero(t, b.Len())
	assert.Zero(t, b.NumSlices())
}

func TestBufferSwap(t *testing.T) {
	a := New()
	a.AppendCopy([]byte("a"))
	b := New()
	b.AppendCopy([]byte("bb"))

	a.Swap(b)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestBufferTakeSlices(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abc"))
	slices := b.TakeSlices()
	require.Len(t, slices, 1)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.NumSlices())
}

func TestBufferCopyOut(t *testing.T) {
	b := New()
	b.AppendCopy([]byte("abc"))
	b.AppendCopy([]byte("def"))
	dst := make([]byte, 4)
	n := b.CopyOut(dst)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(dst))
}

func TestChunkPoolRoundTrip(t *testing.T) {
	c := GetChunk(SmallChunkSize)
	assert.Len(t, c, SmallChunkSize)
	PutChunk(c)

	c2 := GetChunk(LargeChunkSize)
	assert.Len(t, c2, LargeChunkSize)
	PutChunk(c2)

	odd := GetChunk(123)
	assert.Len(t, odd, 123)
}
