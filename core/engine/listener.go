//go:build linux

package engine

import (
	"net/netip"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/cdoenges/misclib/core/core"
	terrr "github.com/cdoenges/misclib/core/errors"
)

// DefaultBacklog is small on purpose: each port serves few clients.
const DefaultBacklog = 4

type Listener interface {
	Fd() int32
	Addr() netip.AddrPort
	Accept() (*core.Socket, netip.AddrPort, error)
	SockError() (unix.Errno, error)
	Close() error
}

type TCPListener struct {
	socket *core.Socket
}

// Listen creates a non-blocking TCP listener on the IPv4 wildcard address.
// On failure the returned error is a *terrr.ReactorError naming the step,
// and the half-built socket has already been closed.
func Listen(port uint16, backlog int) (*TCPListener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	s, err := core.CreateTCPSocket()
	if err != nil {
		return nil, terrr.New(terrr.PhaseSocket, port, err)
	}

	fail := func(phase terrr.Phase, err error) (*TCPListener, error) {
		_ = s.Close()
		return nil, terrr.New(phase, port, err)
	}

	if err := s.ReuseAddr(); err != nil {
		return fail(terrr.PhaseSockOpt, err)
	}
	if err := s.Bind(netip.AddrPortFrom(netip.IPv4Unspecified(), port)); err != nil {
		return fail(terrr.PhaseBind, err)
	}
	if err := s.SetNonblocking(); err != nil {
		return fail(terrr.PhaseNonBlocking, err)
	}
	if err := s.Listen(backlog); err != nil {
		return fail(terrr.PhaseListen, err)
	}

	return &TCPListener{socket: s}, nil
}

func (l *TCPListener) Fd() int32 {
	return l.socket.Fd
}

func (l *TCPListener) Addr() netip.AddrPort {
	return l.socket.LocalAddr
}

func (l *TCPListener) Accept() (*core.Socket, netip.AddrPort, error) {
	return l.socket.Accept()
}

func (l *TCPListener) SockError() (unix.Errno, error) {
	return l.socket.SockError()
}

func (l *TCPListener) Close() error {
	return l.socket.Close()
}

// ListenerSet holds one listener per registered port, in registration order.
type ListenerSet []Listener

// ListenAll opens a listener for every port in order. The first failure
// stops the pass; listeners created for earlier ports are returned
// alongside the error and stay open. Closing them is the caller's job.
func ListenAll(ports []uint16, backlog int) (ListenerSet, error) {
	set := make(ListenerSet, 0, len(ports))
	for _, port := range ports {
		l, err := Listen(port, backlog)
		if err != nil {
			return set, err
		}
		set = append(set, l)
	}
	return set, nil
}

// Close closes every listener and reports all failures together.
func (ls ListenerSet) Close() error {
	var err error
	for _, l := range ls {
		err = multierr.Append(err, l.Close())
	}
	return err
}
