//go:build linux

package transport

import (
	"context"

	"github.com/cdoenges/misclib/server"
	"github.com/cdoenges/misclib/server/peer"
)

// Transport is an application that serves one port through the reactor.
type Transport interface {
	OnConnect(ctx context.Context, peer *peer.Peer) server.ConnectVerdict
	OnReceive(ctx context.Context, peer *peer.Peer) server.ReceiveVerdict
	OnDisconnect(ctx context.Context, peer *peer.Peer)
}

// Bind registers t for port.
func Bind(port uint16, t Transport) server.PortConfiguration {
	return server.PortConfiguration{
		Port:         port,
		OnConnect:    t.OnConnect,
		OnReceive:    t.OnReceive,
		OnDisconnect: t.OnDisconnect,
	}
}
