//go:build linux

// Package app wires the daemon together with fx: configuration, logger,
// metrics and the reactor, whose termination ends the application.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/cdoenges/misclib/config"
	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/server"
)

// Module expects a *config.Config and a *slog.Logger to be supplied.
var Module = fx.Module("misclib",
	fx.Provide(
		NewRegistry,
		NewMetrics,
		NewReactor,
	),
	fx.Invoke(
		RegisterMetricsServer,
		RegisterReactor,
	),
)

// NewRegistry returns the Prometheus registry served on metrics_addr.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics returns nil, which disables metrics, when no metrics_addr is
// configured.
func NewMetrics(cfg *config.Config, reg *prometheus.Registry) (*server.Metrics, error) {
	if cfg.MetricsAddr == "" {
		return nil, nil
	}
	return server.NewMetrics(reg)
}

func NewReactor(cfg *config.Config, logger *slog.Logger, metrics *server.Metrics) (*server.Reactor, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger
	opts.Metrics = metrics

	confs, err := cfg.PortConfigurations(logger)
	if err != nil {
		return nil, err
	}
	reg, err := server.NewRegistry(confs...)
	if err != nil {
		return nil, terrr.New(terrr.PhaseRegistry, 0, err)
	}
	return server.New(reg, opts), nil
}

// RegisterReactor listens when the application starts and serves in the
// background. When the reactor terminates on its own the application is
// shut down with the reactor's status as exit code.
func RegisterReactor(lc fx.Lifecycle, sd fx.Shutdowner, r *server.Reactor, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := r.Listen(startCtx); err != nil {
				cancel()
				close(done)
				return err
			}
			go func() {
				defer close(done)
				serveErr := r.Serve(ctx)
				if ctx.Err() != nil {
					return
				}
				if err := sd.Shutdown(fx.ExitCode(exitCodeOf(serveErr))); err != nil {
					logger.Error("Failed to shut down application", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// RegisterMetricsServer serves /metrics on metrics_addr, if set.
func RegisterMetricsServer(lc fx.Lifecycle, cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("Serving metrics", "address", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// ExitCode maps a reactor status to a process exit code.
func ExitCode(status terrr.Status) int {
	return int(uint8(int8(status)))
}

// exitCodeOf is the process exit code for the error Serve returned.
func exitCodeOf(err error) int {
	return ExitCode(terrr.StatusOf(err))
}
