//go:build linux

package server

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sys/unix"

	"github.com/cdoenges/misclib/core/engine"
	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/core/event"
	"github.com/cdoenges/misclib/server/peer"
)

// slot is the bookkeeping for one registered port: its listener and the
// clients accepted on it.
type slot struct {
	index    int
	port     uint16
	conf     PortConfiguration
	listener engine.Listener // nil once retired or shut down
	clients  []*peer.Peer
}

func (s *slot) find(fd int32) *peer.Peer {
	for _, c := range s.clients {
		if c.Fd() == fd {
			return c
		}
	}
	return nil
}

func (s *slot) attached(c *peer.Peer) bool {
	return slices.Contains(s.clients, c)
}

func (s *slot) detach(c *peer.Peer) {
	s.clients = slices.DeleteFunc(s.clients, func(p *peer.Peer) bool { return p == c })
}

// encodeTag packs the slot index and descriptor into the engine's tag.
func encodeTag(slotIndex int, fd int32) uint64 {
	return uint64(slotIndex)<<32 | uint64(uint32(fd))
}

func decodeTag(tag uint64) (slotIndex int, fd int32) {
	return int(tag >> 32), int32(tag & 0xFFFFFFFF)
}

// dispatch routes one ready descriptor to the matching slot case.
func (r *Reactor) dispatch(ctx context.Context, st *reactorState, ev *engine.NetEvent) {
	index, fd := decodeTag(ev.Tag)
	if index < 0 || index >= len(st.slots) {
		r.log.WarnContext(ctx, "Event for unknown slot", "slot", index, "fd", fd)
		return
	}
	s := st.slots[index]

	switch ev.Role {
	case event.RoleListener:
		if s.listener == nil || s.listener.Fd() != fd {
			return
		}
		if ev.EventType == event.EVENT_TYPE_ACCEPT {
			r.handleAccept(ctx, st, s)
		}
		if ev.Failed && s.listener != nil && !st.terminated {
			r.handleListenerError(ctx, st, s)
		}
	case event.RoleClient:
		c := s.find(fd)
		if c == nil {
			// closed or replaced earlier in this iteration
			return
		}
		if ev.EventType == event.EVENT_TYPE_READ {
			r.handleRead(ctx, s, c)
		}
		if ev.Failed && s.attached(c) && !st.terminated {
			r.handleClientError(ctx, st, s, c)
		}
	}
}

func (r *Reactor) handleAccept(ctx context.Context, st *reactorState, s *slot) {
	sock, remote, err := s.listener.Accept()
	if err != nil {
		if r.opts.AcceptErrors == AcceptErrorSkipTransient && isTransientAcceptError(err) {
			r.acceptLog.Do(func() {
				r.log.WarnContext(ctx, "Skipping transient accept failure", "port", s.port, "error", err)
			})
			return
		}
		r.log.ErrorContext(ctx, "Failed to accept connection", "phase", terrr.PhaseAccept, "port", s.port, "error", err)
		st.terminate(terrr.New(terrr.PhaseAccept, s.port, err))
		return
	}

	connPeer := peer.NewPeer(sock.Fd, sock.LocalAddr, remote)
	if err := sock.SetNonblocking(); err != nil {
		r.log.ErrorContext(ctx, "Failed to make connection non-blocking", "phase", terrr.PhaseNonBlocking, "port", s.port, "fd", sock.Fd, "error", err)
		if cerr := connPeer.Close(); cerr != nil {
			r.log.WarnContext(ctx, "Failed to close peer", "fd", sock.Fd, "error", cerr)
		}
		r.metrics.connClosed(s.port, reasonNonBlocking)
		return
	}

	if r.opts.ClientPolicy == ClientPolicySingle && len(s.clients) > 0 {
		prev := s.clients[0]
		prev.SetState(peer.StateOrphaned)
		r.log.WarnContext(ctx, "Replacing attached client, previous descriptor is orphaned",
			"port", s.port, "orphanedFd", prev.Fd(), "fd", connPeer.Fd())
		s.clients[0] = connPeer
	} else {
		s.clients = append(s.clients, connPeer)
	}
	connPeer.SetState(peer.StateActive)
	r.metrics.connAccepted(s.port)
	r.metrics.setClients(s.port, len(s.clients))
	r.log.DebugContext(ctx, "Accepted new connection", "port", s.port, "fd", connPeer.Fd(), "remoteAddr", connPeer.RemoteAddr(), "session", connPeer.SessionID)

	if s.conf.OnConnect == nil {
		return
	}
	if verdict := s.conf.OnConnect(ctx, connPeer); verdict == StopReactor {
		r.log.InfoContext(ctx, "Connect handler requested reactor stop", "port", s.port, "fd", connPeer.Fd())
		r.closeClient(ctx, s, connPeer, reasonStop)
		st.terminate(nil)
	}
}

func (r *Reactor) handleRead(ctx context.Context, s *slot, c *peer.Peer) {
	if verdict := s.conf.OnReceive(ctx, c); verdict == CloseConnection {
		r.log.DebugContext(ctx, "Receive handler closed connection", "port", s.port, "fd", c.Fd())
		r.closeClient(ctx, s, c, reasonCallback)
	}
}

// handleListenerError retires the port's listener for good. The other
// ports and this port's attached clients keep being served.
func (r *Reactor) handleListenerError(ctx context.Context, st *reactorState, s *slot) {
	soErr, err := s.listener.SockError()
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to query listener error", "phase", terrr.PhaseErrorQuery, "port", s.port, "error", err)
		st.terminate(terrr.New(terrr.PhaseErrorQuery, s.port, err))
		return
	}
	r.log.ErrorContext(ctx, "Listener failed, no longer accepting on port", "port", s.port, "fd", s.listener.Fd(), "error", soErr)
	if err := s.listener.Close(); err != nil {
		r.log.WarnContext(ctx, "Failed to close listener", "port", s.port, "error", err)
	}
	s.listener = nil
	r.metrics.listenerRetired(s.port)
}

// handleClientError closes a client that hung up or failed. SO_ERROR of
// zero is an orderly close by the client.
func (r *Reactor) handleClientError(ctx context.Context, st *reactorState, s *slot, c *peer.Peer) {
	soErr, err := c.SockError()
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to query socket error", "phase", terrr.PhaseErrorQuery, "port", s.port, "fd", c.Fd(), "error", err)
		st.terminate(terrr.New(terrr.PhaseErrorQuery, s.port, err))
		return
	}
	reason := reasonHangup
	if soErr != 0 {
		reason = reasonError
		r.log.WarnContext(ctx, "Connection failed", "port", s.port, "fd", c.Fd(), "error", soErr)
	} else {
		r.log.DebugContext(ctx, "Peer closed connection", "port", s.port, "fd", c.Fd())
	}
	r.closeClient(ctx, s, c, reason)
}

// closeClient detaches c, closes it and then tells the application.
func (r *Reactor) closeClient(ctx context.Context, s *slot, c *peer.Peer, reason string) {
	s.detach(c)
	if err := c.Close(); err != nil {
		r.log.WarnContext(ctx, "Failed to close peer", "port", s.port, "fd", c.Fd(), "error", err)
	}
	r.metrics.connClosed(s.port, reason)
	r.metrics.setClients(s.port, len(s.clients))
	if s.conf.OnDisconnect != nil {
		s.conf.OnDisconnect(ctx, c)
	}
}

func isTransientAcceptError(err error) bool {
	for _, errno := range []unix.Errno{
		unix.EAGAIN,
		unix.EINTR,
		unix.ECONNABORTED,
		unix.EMFILE,
		unix.ENFILE,
		unix.ENOBUFS,
		unix.ENOMEM,
		unix.EPROTO,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
