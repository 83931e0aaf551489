package buffer

import (
	"errors"
	"io"
)

var (
	ErrBufferFull = errors.New("buffer is full")
)

// RingBuffer is a byte FIFO with a power-of-two capacity. It is not safe
// for concurrent use; each peer owns one and only the reactor goroutine
// touches it.
type RingBuffer struct {
	buf  []byte
	mask uint64
	head uint64
	tail uint64
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

func NewRingBuffer(size int) *RingBuffer {
	capacity := nextPow2(size)
	return &RingBuffer{
		buf:  make([]byte, capacity),
		mask: uint64(capacity) - 1,
	}
}

func (r *RingBuffer) Length() int {
	return int(r.tail - r.head)
}

func (r *RingBuffer) Capacity() int {
	return len(r.buf)
}

func (r *RingBuffer) Free() int {
	return r.Capacity() - r.Length()
}

// Advance drops up to n bytes from the front and returns how many were
// dropped.
func (r *RingBuffer) Advance(n int) int {
	if n <= 0 {
		return 0
	}
	if n > r.Length() {
		n = r.Length()
	}
	r.head += uint64(n)
	return n
}

func (r *RingBuffer) Reset() {
	r.head = 0
	r.tail = 0
}

// Write appends all of b or nothing.
func (r *RingBuffer) Write(b []byte) (int, error) {
	if len(b) > r.Free() {
		return 0, ErrBufferFull
	}
	i := int(r.tail & r.mask)
	n1 := copy(r.buf[i:], b)
	n2 := copy(r.buf, b[n1:])
	r.tail += uint64(n1 + n2)
	return n1 + n2, nil
}

// Read drains up to len(p) bytes. An empty buffer returns io.EOF.
func (r *RingBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.Length() == 0 {
		return 0, io.EOF
	}
	n := min(len(p), r.Length())
	r.Peek(p[:n])
	r.head += uint64(n)
	return n, nil
}

// Peek copies len(dst) bytes from the front without consuming them.
func (r *RingBuffer) Peek(dst []byte) bool {
	if len(dst) > r.Length() {
		return false
	}
	i := int(r.head & r.mask)
	n1 := copy(dst, r.buf[i:])
	if n1 < len(dst) {
		copy(dst[n1:], r.buf[:len(dst)-n1])
	}
	return true
}

// PeekOut copies the whole content without consuming it.
func (r *RingBuffer) PeekOut() []byte {
	dst := make([]byte, r.Length())
	r.Peek(dst)
	return dst
}

// View returns the first n bytes as at most two slices aliasing the
// buffer. They are valid until the next Write.
func (r *RingBuffer) View(n int) (a, b []byte, ok bool) {
	if n > r.Length() {
		return nil, nil, false
	}
	i := int(r.head & r.mask)
	if i+n <= len(r.buf) {
		return r.buf[i : i+n : i+n], nil, true
	}
	n1 := len(r.buf) - i
	return r.buf[i:len(r.buf):len(r.buf)], r.buf[: n-n1 : n-n1], true
}

// WritableTail returns the contiguous free region after the tail so a
// reader can fill it directly; Commit makes the filled bytes visible.
func (r *RingBuffer) WritableTail() []byte {
	if r.Free() == 0 {
		return nil
	}
	i := int(r.tail & r.mask)
	end := len(r.buf)
	// tail が head より前なら空き領域は head までで終わる
	if h := int(r.head & r.mask); i < h {
		end = h
	}
	return r.buf[i:end:end]
}

func (r *RingBuffer) Commit(n int) {
	if n <= 0 {
		return
	}
	if n > r.Free() {
		n = r.Free()
	}
	r.tail += uint64(n)
}
