//go:build linux

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoenges/misclib/server/peer"
)

func TestNewMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	var already prometheus.AlreadyRegisteredError
	assert.True(t, errors.As(err, &already))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.connAccepted(1)
		m.connClosed(1, reasonHangup)
		m.listenerRetired(1)
		m.setClients(1, 3)
		m.readyEvents(2)
	})
}

// echoOnce answers one chunk and closes.
func echoOnce(_ context.Context, p *peer.Peer) ReceiveVerdict {
	if _, err := p.Fill(); err != nil && !errors.Is(err, io.EOF) {
		return CloseConnection
	}
	_, _ = p.Write(p.Reader.Drain())
	return CloseConnection
}

func TestReactorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	r := New(mustRegistry(t, PortConfiguration{OnReceive: echoOnce}), Options{
		WaitTimeout: 10 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     m,
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Listen(ctx))
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()
	port := strconv.Itoa(int(r.Ports()[0]))

	conn, err := net.DialTimeout("tcp4", "127.0.0.1:"+port, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.closed.WithLabelValues(port, reasonCallback)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.accepted.WithLabelValues(port)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.clients.WithLabelValues(port)))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, testutil.CollectAndCount(m.closed), "only the callback reason was recorded")
	assert.Zero(t, testutil.CollectAndCount(m.retired))
}

func mustRegistry(t *testing.T, entries ...PortConfiguration) *Registry {
	t.Helper()
	reg, err := NewRegistry(entries...)
	require.NoError(t, err)
	return reg
}
