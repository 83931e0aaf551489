//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/cdoenges/misclib/config"
	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/internal/app"
	"github.com/cdoenges/misclib/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reactor",
	Example: `  misclibd serve --config misclib.toml
  misclibd serve --port 9000:upper --port 9001:upper --port 9999:stop`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	configPath   string
	portFlags    []string
	metricsAddr  string
	clientPolicy string
	exitOnIdle   bool
	stopTimeout  time.Duration
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	serveCmd.Flags().StringArrayVarP(&portFlags, "port", "p", nil, "Port to serve as port:app (repeatable, app is echo, upper or stop)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().StringVar(&clientPolicy, "client-policy", "", "Clients per port: multi or single")
	serveCmd.Flags().BoolVar(&exitOnIdle, "exit-on-idle", false, "Stop after one wait with no activity")
	serveCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "How long shutdown may take")
	rootCmd.AddCommand(serveCmd)
}

// loadServeConfig merges the config file with the command line flags.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	for _, f := range portFlags {
		p, err := config.ParsePortFlag(f)
		if err != nil {
			return nil, err
		}
		cfg.Ports = append(cfg.Ports, p)
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if cmd.Flags().Changed("client-policy") {
		cfg.ClientPolicy = clientPolicy
	}
	if cmd.Flags().Changed("exit-on-idle") {
		cfg.ExitOnIdle = exitOnIdle
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Ports) == 0 {
		return nil, fmt.Errorf("no ports configured (use --config or --port)")
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.Logger
	if configPath != "" && !cmd.Flags().Changed("verbose") {
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		logger = logging.SetupLevel(level, jsonOutput || cfg.LogFormat == "json", os.Stderr)
	}

	fxApp := fx.New(
		fx.Supply(cfg, logger),
		app.Module,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
	)
	if err := fxApp.Err(); err != nil {
		return setupError(logger, err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return setupError(logger, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	code := 0
	select {
	case sig := <-fxApp.Wait():
		code = sig.ExitCode
	case s := <-sigCh:
		logger.Info("Shutdown signal received", "signal", s.String())
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Error("Failed to stop cleanly", slog.Any("error", err))
	}

	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// setupError keeps the failing phase's status as the exit code when the
// error came from the reactor.
func setupError(logger *slog.Logger, err error) error {
	status := terrr.StatusOf(err)
	if status == terrr.StatusUnknown {
		return err
	}
	logger.Error("Failed to start", "phase", terrr.PhaseOf(err), "error", err)
	return &exitError{code: app.ExitCode(status)}
}
