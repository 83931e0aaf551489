//go:build linux

package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cdoenges/misclib/core/buffer"
	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/middleware"
	"github.com/cdoenges/misclib/server"
	"github.com/cdoenges/misclib/server/peer"
)

type Mode int

const (
	// ModeEcho writes every received chunk back unchanged.
	ModeEcho Mode = iota
	// ModeUpper writes it back in ASCII upper case.
	ModeUpper
)

func (m Mode) String() string {
	switch m {
	case ModeEcho:
		return "echo"
	case ModeUpper:
		return "upper"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "echo":
		return ModeEcho, nil
	case "upper":
		return ModeUpper, nil
	default:
		return 0, fmt.Errorf("unknown echo mode %q", s)
	}
}

type EchoApplication struct {
	mode     Mode
	pipeline *middleware.Pipeline
	log      *slog.Logger
}

func NewEchoApplication(mode Mode, logger *slog.Logger) *EchoApplication {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("app", mode.String())

	pipeline := middleware.NewPipeline().Use(middleware.Logging(logger))
	if mode == ModeUpper {
		pipeline.Use(middleware.Upper)
	}
	pipeline.Use(middleware.Echo)

	return &EchoApplication{
		mode:     mode,
		pipeline: pipeline,
		log:      logger,
	}
}

func (e *EchoApplication) Mode() Mode {
	return e.mode
}

func (e *EchoApplication) OnConnect(ctx context.Context, p *peer.Peer) server.ConnectVerdict {
	e.log.DebugContext(ctx, "Connection established", "fd", p.Fd(), "peer", p.RemoteAddr(), "local", p.LocalAddr())
	return server.ContinueServing
}

// OnReceive reads whatever is available, answers it and keeps the
// connection until the client closes its side.
func (e *EchoApplication) OnReceive(ctx context.Context, p *peer.Peer) server.ReceiveVerdict {
	_, readErr := p.Fill()

	if p.Reader.Length() > 0 {
		mctx := middleware.NewContext(p.Reader.Drain(), p)
		if err := e.pipeline.Execute(mctx); err != nil {
			e.log.ErrorContext(ctx, "Pipeline execution failed", "fd", p.Fd(), "error", err)
			return server.CloseConnection
		}
		if len(mctx.Response) > 0 {
			if _, err := p.Write(mctx.Response); err != nil {
				e.log.WarnContext(ctx, "Failed to send response", "fd", p.Fd(), "error", err)
				return server.CloseConnection
			}
		}
	}

	switch {
	case readErr == nil,
		errors.Is(readErr, terrr.ErrWouldBlock),
		errors.Is(readErr, buffer.ErrBufferFull):
		return server.KeepOpen
	case errors.Is(readErr, io.EOF):
		e.log.DebugContext(ctx, "Peer finished sending", "fd", p.Fd())
		return server.CloseConnection
	default:
		e.log.WarnContext(ctx, "Failed to read from peer", "fd", p.Fd(), "error", readErr)
		return server.CloseConnection
	}
}

func (e *EchoApplication) OnDisconnect(ctx context.Context, p *peer.Peer) {
	e.log.DebugContext(ctx, "Connection closed", "peer", p.RemoteAddr(), "session", p.SessionID)
}
