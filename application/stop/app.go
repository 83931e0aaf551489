//go:build linux

// Package stop serves a shutdown port: the first client to connect stops
// the whole reactor.
package stop

import (
	"context"
	"log/slog"

	"github.com/cdoenges/misclib/server"
	"github.com/cdoenges/misclib/server/peer"
)

type StopApplication struct {
	log *slog.Logger
}

func NewStopApplication(logger *slog.Logger) *StopApplication {
	if logger == nil {
		logger = slog.Default()
	}
	return &StopApplication{log: logger.With("app", "stop")}
}

func (s *StopApplication) OnConnect(ctx context.Context, p *peer.Peer) server.ConnectVerdict {
	s.log.InfoContext(ctx, "Stop requested", "peer", p.RemoteAddr(), "port", p.Port())
	return server.StopReactor
}

func (s *StopApplication) OnReceive(context.Context, *peer.Peer) server.ReceiveVerdict {
	return server.CloseConnection
}

func (s *StopApplication) OnDisconnect(context.Context, *peer.Peer) {}
