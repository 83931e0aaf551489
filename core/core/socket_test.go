//go:build linux

package core

import (
	"net"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func listenLoopback(t *testing.T) *Socket {
	t.Helper()
	s, err := CreateTCPSocket()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ReuseAddr())
	require.NoError(t, s.Bind(netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 0)))
	require.NoError(t, s.Listen(4))
	return s
}

func TestSocketBindReportsKernelPort(t *testing.T) {
	s := listenLoopback(t)
	assert.NotZero(t, s.LocalAddr.Port())
	assert.Equal(t, "127.0.0.1", s.LocalAddr.Addr().String())
}

func TestSocketBindRejectsIPv6(t *testing.T) {
	s, err := CreateTCPSocket()
	require.NoError(t, err)
	defer s.Close()

	err = s.Bind(netip.MustParseAddrPort("[::1]:0"))
	assert.ErrorIs(t, err, unix.EAFNOSUPPORT)
}

func TestSocketBindAddressInUse(t *testing.T) {
	first := listenLoopback(t)

	second, err := CreateTCPSocket()
	require.NoError(t, err)
	defer second.Close()

	err = second.Bind(first.LocalAddr)
	assert.ErrorIs(t, err, unix.EADDRINUSE)
}

func TestSocketAccept(t *testing.T) {
	s := listenLoopback(t)
	require.NoError(t, s.SetNonblocking())

	_, _, err := s.Accept()
	require.ErrorIs(t, err, unix.EAGAIN, "empty queue on a non-blocking listener")

	conn, err := net.Dial("tcp", s.LocalAddr.String())
	require.NoError(t, err)
	defer conn.Close()

	var (
		client *Socket
		remote netip.AddrPort
	)
	require.Eventually(t, func() bool {
		client, remote, err = s.Accept()
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	defer client.Close()

	_, port, _ := net.SplitHostPort(conn.LocalAddr().String())
	assert.Equal(t, port, strconv.Itoa(int(remote.Port())))
	assert.Equal(t, s.LocalAddr, client.LocalAddr)

	soErr, err := client.SockError()
	require.NoError(t, err)
	assert.Zero(t, soErr)
}

func TestNonblockingToggles(t *testing.T) {
	s, err := CreateTCPSocket()
	require.NoError(t, err)
	defer s.Close()
	fd := int(s.Fd)

	on, err := IsNonblocking(fd)
	require.NoError(t, err)
	assert.False(t, on)

	for i := 0; i < 2; i++ {
		require.NoError(t, SetNonblocking(fd))
		on, err = IsNonblocking(fd)
		require.NoError(t, err)
		assert.True(t, on)
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, SetBlocking(fd))
		on, err = IsNonblocking(fd)
		require.NoError(t, err)
		assert.False(t, on)
	}
}

func TestNonblockingTogglesBadDescriptor(t *testing.T) {
	assert.ErrorIs(t, SetNonblocking(-1), unix.EBADF)
	assert.ErrorIs(t, SetBlocking(-1), unix.EBADF)
}
