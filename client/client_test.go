package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveOnce answers one message with reply and then closes.
func serveOnce(t *testing.T, reply string) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		if _, err := conn.Read(buf); err != nil && err != io.EOF {
			return
		}
		_, _ = conn.Write([]byte(reply))
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestSendAndReceive(t *testing.T) {
	port := serveOnce(t, "pong")

	c, err := Dial(context.Background(), "localhost", port)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 16)
	n, err := c.SendAndReceive([]byte("ping"), buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))

	n, err = c.Receive(buf)
	require.NoError(t, err)
	assert.Zero(t, n, "server closed")
	assert.NoError(t, c.Close())
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), "127.0.0.1", port)
	assert.Error(t, err)
}
