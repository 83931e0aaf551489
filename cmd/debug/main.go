//go:build linux

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cdoenges/misclib/application/echo"
	"github.com/cdoenges/misclib/application/stop"
	"github.com/cdoenges/misclib/internal/app"
	"github.com/cdoenges/misclib/internal/logging"
	"github.com/cdoenges/misclib/server"
	"github.com/cdoenges/misclib/transport"
)

// Serves upper case echo on 9000 and 9001 with debug logging. Connecting
// to 9999 stops it.
func main() {
	logger := logging.Setup(true, false, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	upper := echo.NewEchoApplication(echo.ModeUpper, logger)
	configs := []server.PortConfiguration{
		transport.Bind(9000, upper),
		transport.Bind(9001, upper),
		transport.Bind(9999, stop.NewStopApplication(logger)),
	}

	slog.Info("Server starting", "ports", []int{9000, 9001}, "stopPort", 9999)
	status := server.Run(ctx, configs, server.Options{Logger: logger})
	slog.Info("Server stopped", "status", int(status))
	os.Exit(app.ExitCode(status))
}
