package buffer

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingBufferRoundsUp(t *testing.T) {
	assert.Equal(t, 8, NewRingBuffer(5).Capacity())
	assert.Equal(t, 4096, NewRingBuffer(4096).Capacity())
	assert.Equal(t, 1, NewRingBuffer(0).Capacity())
}

func TestRingBufferWriteAllOrNothing(t *testing.T) {
	r := NewRingBuffer(4)

	n, err := r.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = r.Write([]byte("de"))
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Zero(t, n)
	assert.Equal(t, 3, r.Length())
}

func TestRingBufferWrapAround(t *testing.T) {
	r := NewRingBuffer(4)
	_, err := r.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Advance(2))

	_, err = r.Write([]byte("def"))
	require.NoError(t, err)

	a, b, ok := r.View(4)
	require.True(t, ok)
	assert.Equal(t, "cdef", string(a)+string(b))
	assert.NotEmpty(t, b, "the view spans the end of the backing array")

	assert.Equal(t, "cdef", string(r.PeekOut()))
	assert.Equal(t, 4, r.Length(), "peeking does not consume")
}

func TestRingBufferRead(t *testing.T) {
	r := NewRingBuffer(8)
	_, _ = r.Write([]byte("hello"))

	p := make([]byte, 3)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(p[:n]))

	n, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(p[:n]))

	_, err = r.Read(p)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRingBufferAdvanceClamps(t *testing.T) {
	r := NewRingBuffer(8)
	_, _ = r.Write([]byte("xy"))

	assert.Zero(t, r.Advance(-1))
	assert.Equal(t, 2, r.Advance(10))
	assert.Zero(t, r.Length())
}

func TestRingBufferWritableTail(t *testing.T) {
	r := NewRingBuffer(8)

	tail := r.WritableTail()
	require.Len(t, tail, 8)
	copy(tail, "abcdef")
	r.Commit(6)
	assert.Equal(t, "abcdef", string(r.PeekOut()))

	r.Advance(4)
	// free space is [6,8) followed by [0,4); only the first run is contiguous
	assert.Len(t, r.WritableTail(), 2)
	r.Commit(2)

	tail = r.WritableTail()
	require.Len(t, tail, 4)
	copy(tail, "WXYZ")
	r.Commit(4)
	assert.Equal(t, "ef\x00\x00WXYZ", string(r.PeekOut()))
	assert.Nil(t, r.WritableTail())

	r.Reset()
	assert.Zero(t, r.Length())
}
