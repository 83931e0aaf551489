//go:build linux

package peer

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"

	"github.com/cdoenges/misclib/core/buffer"
	terrr "github.com/cdoenges/misclib/core/errors"
)

type RingReader struct {
	ring *buffer.RingBuffer
}

func NewRingReader(size int) *RingReader {
	if size <= 0 {
		size = 4096
	}
	return &RingReader{
		ring: buffer.NewRingBuffer(size),
	}
}

// Fill reads from fd until the socket would block or the ring is full.
// It returns the number of bytes buffered; io.EOF means the peer closed
// its side (bytes read before the close are still buffered).
func (p *RingReader) Fill(fd int) (int, error) {
	total := 0
	for {
		tail := p.ring.WritableTail()
		if len(tail) == 0 {
			return total, buffer.ErrBufferFull
		}
		n, err := unix.Read(fd, tail)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			if total == 0 {
				return 0, terrr.ErrWouldBlock
			}
			return total, nil
		case err != nil:
			return total, err
		case n == 0:
			return total, io.EOF
		}
		p.ring.Commit(n)
		total += n
	}
}

func (p *RingReader) Feed(data []byte) error {
	_, err := p.ring.Write(data)
	return err
}

func (p *RingReader) Read(b []byte) (int, error) {
	return p.ring.Read(b)
}

func (p *RingReader) Advance(n int) {
	p.ring.Advance(n)
}

func (p *RingReader) Peek(b []byte) bool {
	return p.ring.Peek(b)
}

func (p *RingReader) View(n int) ([]byte, []byte, bool) {
	return p.ring.View(n)
}

func (p *RingReader) Length() int {
	return p.ring.Length()
}

// Drain returns and consumes everything buffered.
func (p *RingReader) Drain() []byte {
	out := p.ring.PeekOut()
	p.ring.Advance(len(out))
	return out
}
