//go:build linux

package peer

import (
	"errors"
	"io"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/cdoenges/misclib/core/core"
	terrr "github.com/cdoenges/misclib/core/errors"
)

// Peer is one accepted client connection. Its descriptor is non-blocking.
type Peer struct {
	SessionID  string
	fd         int32
	port       uint16
	localAddr  netip.AddrPort
	remoteAddr netip.AddrPort
	status     atomic.Int32
	LastActive atomic.Int64

	Reader *RingReader
}

func NewPeer(fd int32, localAddr netip.AddrPort, remoteAddr netip.AddrPort) *Peer {
	sessionID := uuid.NewString()
	p := &Peer{
		SessionID:  sessionID,
		fd:         fd,
		port:       localAddr.Port(),
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
		Reader:     NewRingReader(4096),
	}
	p.Touch()
	return p
}

func (p *Peer) Fd() int32 {
	return p.fd
}

// Port is the local port the client connected to.
func (p *Peer) Port() uint16 {
	return p.port
}

func (p *Peer) LocalAddr() netip.AddrPort {
	return p.localAddr
}

// RemoteAddr is the client's address. It is invalid when the kernel did
// not report one.
func (p *Peer) RemoteAddr() netip.AddrPort {
	return p.remoteAddr
}

func (p *Peer) State() ConnState {
	return ConnState(p.status.Load())
}

func (p *Peer) Status() string {
	return p.State().String()
}

func (p *Peer) SetState(s ConnState) {
	p.status.Store(int32(s))
}

func (p *Peer) Touch() {
	p.LastActive.Store(time.Now().UnixNano())
}

// Fill pulls everything currently readable into p.Reader.
func (p *Peer) Fill() (int, error) {
	n, err := p.Reader.Fill(int(p.fd))
	if n > 0 {
		p.Touch()
	}
	return n, err
}

// Read serves buffered bytes first, then reads the socket. It returns
// terrr.ErrWouldBlock when nothing is available yet and io.EOF once the
// client has closed its side.
func (p *Peer) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if p.Reader.Length() > 0 {
		return p.Reader.Read(b)
	}
	for {
		n, err := unix.Read(int(p.fd), b)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, terrr.ErrWouldBlock
		case err != nil:
			return 0, err
		case n == 0:
			return 0, io.EOF
		}
		p.Touch()
		return n, nil
	}
}

// Write writes all of b unless the socket buffer fills up, in which case
// it returns the count written so far and terrr.ErrWouldBlock.
func (p *Peer) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := unix.Write(int(p.fd), b[written:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return written, terrr.ErrWouldBlock
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

// SockError reads and clears the pending socket error. Zero means none is
// pending, which after a hangup means the client closed in an orderly way.
func (p *Peer) SockError() (unix.Errno, error) {
	return (&core.Socket{Fd: p.fd, LocalAddr: p.localAddr}).SockError()
}

// Close releases the descriptor once; later calls do nothing.
func (p *Peer) Close() error {
	for {
		s := p.status.Load()
		if ConnState(s) == StateClosed {
			return nil
		}
		if p.status.CompareAndSwap(s, int32(StateClosed)) {
			break
		}
	}
	return unix.Close(int(p.fd))
}
