//go:build linux

package server

import (
	"context"
	"fmt"

	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/server/peer"
)

// ConnectVerdict is what OnConnect tells the reactor. StopReactor ends
// service on every port, not just the new connection.
type ConnectVerdict int

const (
	ContinueServing ConnectVerdict = iota
	StopReactor
)

func (v ConnectVerdict) String() string {
	switch v {
	case ContinueServing:
		return "continue-serving"
	case StopReactor:
		return "stop-reactor"
	default:
		return fmt.Sprintf("connect-verdict(%d)", int(v))
	}
}

// ReceiveVerdict is what OnReceive tells the reactor. It only ever
// affects the one connection that was readable.
type ReceiveVerdict int

const (
	KeepOpen ReceiveVerdict = iota
	CloseConnection
)

func (v ReceiveVerdict) String() string {
	switch v {
	case KeepOpen:
		return "keep-open"
	case CloseConnection:
		return "close-connection"
	default:
		return fmt.Sprintf("receive-verdict(%d)", int(v))
	}
}

type (
	ConnectFunc    func(ctx context.Context, p *peer.Peer) ConnectVerdict
	ReceiveFunc    func(ctx context.Context, p *peer.Peer) ReceiveVerdict
	DisconnectFunc func(ctx context.Context, p *peer.Peer)
)

// PortConfiguration binds callbacks to one TCP port. OnConnect and
// OnDisconnect may be nil. OnDisconnect runs after the descriptor has
// been closed, so it must not do I/O on it.
//
// Port 0 lets the kernel pick a free port; Reactor.Ports reports it.
type PortConfiguration struct {
	Port         uint16
	OnConnect    ConnectFunc
	OnReceive    ReceiveFunc
	OnDisconnect DisconnectFunc
}

// Registry is the ordered, read-only list of ports a reactor serves.
type Registry struct {
	entries []PortConfiguration
}

// NewRegistry copies and validates the configurations. Every entry needs
// OnReceive, and a non-zero port may appear only once.
func NewRegistry(entries ...PortConfiguration) (*Registry, error) {
	seen := make(map[uint16]int, len(entries))
	for i, e := range entries {
		if e.OnReceive == nil {
			return nil, fmt.Errorf("%w: entry %d (port %d) has no OnReceive", terrr.ErrInvalidRegistry, i, e.Port)
		}
		if e.Port == 0 {
			continue
		}
		if prev, dup := seen[e.Port]; dup {
			return nil, fmt.Errorf("%w: port %d registered by entries %d and %d", terrr.ErrInvalidRegistry, e.Port, prev, i)
		}
		seen[e.Port] = i
	}
	return &Registry{entries: append([]PortConfiguration(nil), entries...)}, nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

func (r *Registry) Entry(i int) PortConfiguration {
	return r.entries[i]
}

func (r *Registry) Entries() []PortConfiguration {
	if r == nil {
		return nil
	}
	return append([]PortConfiguration(nil), r.entries...)
}

// Ports lists the configured port numbers in registration order.
func (r *Registry) Ports() []uint16 {
	ports := make([]uint16, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		ports = append(ports, r.entries[i].Port)
	}
	return ports
}
