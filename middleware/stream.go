package middleware

import "log/slog"

// Echo copies the received bytes into the response.
func Echo(ctx *Context, next NextFunc) error {
	ctx.Response = append(ctx.Response[:0], ctx.Data...)
	return next(ctx)
}

// Upper converts the response to ASCII upper case after the rest of the
// chain has run.
func Upper(ctx *Context, next NextFunc) error {
	if err := next(ctx); err != nil {
		return err
	}
	for i, c := range ctx.Response {
		if 'a' <= c && c <= 'z' {
			ctx.Response[i] = c - ('a' - 'A')
		}
	}
	return nil
}

// Logging logs every chunk at debug level.
func Logging(logger *slog.Logger) MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx *Context, next NextFunc) error {
		logger.Debug("Received data from peer", "fd", ctx.Fd, "remoteAddr", ctx.Peer.RemoteAddr(), "dataLength", len(ctx.Data))
		err := next(ctx)
		if err != nil {
			logger.Warn("Pipeline failed", "fd", ctx.Fd, "error", err)
			return err
		}
		logger.Debug("Prepared response", "fd", ctx.Fd, "responseLength", len(ctx.Response))
		return nil
	}
}
