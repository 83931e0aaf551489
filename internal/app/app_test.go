//go:build linux

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"golang.org/x/sys/unix"

	"github.com/cdoenges/misclib/client"
	"github.com/cdoenges/misclib/config"
	"github.com/cdoenges/misclib/core/engine"
	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/server"
)

func testConfig(ports ...config.Port) *config.Config {
	cfg := config.Default()
	cfg.WaitTimeout = 10 * time.Millisecond
	cfg.Ports = ports
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, extra ...fx.Option) *fxtest.App {
	opts := []fx.Option{
		fx.Supply(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Module,
		fx.NopLogger,
	}
	return fxtest.New(t, append(opts, extra...)...)
}

func TestModuleServesConfiguredPorts(t *testing.T) {
	var r *server.Reactor
	app := newTestApp(t, testConfig(config.Port{App: config.AppUpper}), fx.Populate(&r))
	app.RequireStart()
	defer app.RequireStop()

	require.Equal(t, server.StateRunning, waitState(t, r, server.StateRunning))
	c, err := client.Dial(context.Background(), "127.0.0.1", r.Ports()[0])
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 16)
	n, err := c.SendAndReceive([]byte("fx"), buf)
	require.NoError(t, err)
	assert.Equal(t, "FX", string(buf[:n]))
}

func TestModuleStopPortShutsDownApp(t *testing.T) {
	var r *server.Reactor
	app := newTestApp(t, testConfig(config.Port{App: config.AppEcho}, config.Port{App: config.AppStop}), fx.Populate(&r))
	app.RequireStart()

	c, err := client.Dial(context.Background(), "127.0.0.1", r.Ports()[1])
	require.NoError(t, err)
	defer c.Close()

	select {
	case sig := <-app.Wait():
		assert.Equal(t, int(terrr.StatusOK), sig.ExitCode)
	case <-time.After(2 * time.Second):
		t.Fatal("application was not shut down")
	}
	app.RequireStop()
	assert.Equal(t, server.StateTerminated, r.State())
}

func TestModuleMetricsEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(config.Port{App: config.AppUpper})
	cfg.MetricsAddr = addr

	var (
		metrics *server.Metrics
		reg     *prometheus.Registry
	)
	app := newTestApp(t, cfg, fx.Populate(&metrics, &reg))
	app.RequireStart()
	defer app.RequireStop()

	assert.NotNil(t, metrics)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "misclib_reactor_ready_events")
}

func TestModuleWithoutMetrics(t *testing.T) {
	var metrics *server.Metrics
	app := newTestApp(t, testConfig(), fx.Populate(&metrics))
	app.RequireStart()
	defer app.RequireStop()
	assert.Nil(t, metrics)
}

func TestModuleBindFailure(t *testing.T) {
	var r *server.Reactor
	app := newTestApp(t, testConfig(config.Port{App: config.AppEcho}), fx.Populate(&r))
	require.NoError(t, app.Start(context.Background()))
	defer app.RequireStop()

	cfg := testConfig(config.Port{Port: r.Ports()[0], App: config.AppEcho})
	clash := fx.New(
		fx.Supply(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Module,
		fx.NopLogger,
	)
	err := clash.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, terrr.StatusBind, terrr.StatusOf(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(terrr.StatusOK))
	assert.Equal(t, 254, ExitCode(terrr.StatusBind))
	assert.Equal(t, 251, ExitCode(terrr.StatusWait))
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(nil))
	assert.Equal(t, 250, exitCodeOf(terrr.New(terrr.PhaseAccept, 9000, unix.EAGAIN)))
	assert.Equal(t, 129, exitCodeOf(errors.New("boom")))
}

// brokenWaitEngine fails every wait, which ends the reactor on its own.
type brokenWaitEngine struct {
	*engine.PollEngine
}

func (brokenWaitEngine) Wait(context.Context, time.Duration) ([]*engine.NetEvent, error) {
	return nil, unix.EBADF
}

func TestReactorFailureShutsDownWithExitCode(t *testing.T) {
	cfg := testConfig(config.Port{App: config.AppEcho})
	app := fxtest.New(t,
		fx.Supply(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))),
		fx.Provide(func(cfg *config.Config, logger *slog.Logger) (*server.Reactor, error) {
			confs, err := cfg.PortConfigurations(logger)
			if err != nil {
				return nil, err
			}
			reg, err := server.NewRegistry(confs...)
			if err != nil {
				return nil, err
			}
			return server.New(reg, server.Options{Logger: logger, Engine: brokenWaitEngine{engine.NewPollEngine()}}), nil
		}),
		fx.Invoke(RegisterReactor),
		fx.NopLogger,
	)
	app.RequireStart()

	select {
	case sig := <-app.Wait():
		assert.Equal(t, 251, sig.ExitCode)
	case <-time.After(2 * time.Second):
		t.Fatal("application was not shut down")
	}
	app.RequireStop()
}

func waitState(t *testing.T, r *server.Reactor, want server.State) server.State {
	t.Helper()
	require.Eventually(t, func() bool { return r.State() == want }, 2*time.Second, 5*time.Millisecond)
	return r.State()
}
