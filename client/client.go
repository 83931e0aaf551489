// Package client holds blocking helpers for talking to a reactor port.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout bounds Dial when the context has no deadline of its own.
const DefaultTimeout = 5 * time.Second

type Conn struct {
	conn   net.Conn
	closed bool
}

// Dial connects to host:port over IPv4. host may be a name or an address.
func Dial(ctx context.Context, host string, port uint16) (*Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", host, port, err)
	}
	return &Conn{conn: conn}, nil
}

func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// SetDeadline bounds later Send and Receive calls.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Send writes all of b.
func (c *Conn) Send(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Receive reads at most len(b) bytes. It returns 0 and no error when the
// server closed the connection, and closes c in that case.
func (c *Conn) Receive(b []byte) (int, error) {
	n, err := c.conn.Read(b)
	if errors.Is(err, io.EOF) {
		if n == 0 {
			_ = c.Close()
		}
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("receive: %w", err)
	}
	return n, nil
}

// SendAndReceive sends req and returns the first chunk of the reply.
func (c *Conn) SendAndReceive(req []byte, resp []byte) (int, error) {
	if err := c.Send(req); err != nil {
		return 0, err
	}
	clear(resp)
	return c.Receive(resp)
}

// Close closes the connection; later calls do nothing.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
