//go:build linux

package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"
)

type sockAddr struct {
	Family uint16
	Data   [14]byte
}

type Socket struct {
	Fd        int32
	LocalAddr netip.AddrPort
}

// CreateTCPSocket は IPv4 の stream socket を作成します
func CreateTCPSocket() (*Socket, error) {
	fd, _, errno := unix.Syscall6(
		unix.SYS_SOCKET,
		unix.AF_INET,
		unix.SOCK_STREAM|unix.SOCK_CLOEXEC,
		0,
		0,
		0,
		0)
	if errno != 0 {
		return nil, fmt.Errorf("socket: %w", errno)
	}
	return &Socket{Fd: int32(fd)}, nil
}

// ReuseAddr enables SO_REUSEADDR so a restarted server can bind a port
// still held by connections in TIME_WAIT.
func (s *Socket) ReuseAddr() error {
	opVal := int32(1)
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(s.Fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, uintptr(unsafe.Pointer(&opVal)), unsafe.Sizeof(opVal), 0)
	if errno != 0 {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", errno)
	}
	return nil
}

func (s *Socket) Bind(address netip.AddrPort) error {
	// https://man7.org/linux/man-pages/man2/bind.2.html
	if !address.Addr().Is4() {
		return fmt.Errorf("bind %s: %w", address, unix.EAFNOSUPPORT)
	}
	sockaddr := sockAddr{
		Family: unix.AF_INET,
	}

	binary.BigEndian.PutUint16(sockaddr.Data[:], address.Port())

	addr := address.Addr().As4()
	copy(sockaddr.Data[2:], addr[:])

	_, _, errno := unix.Syscall6(
		unix.SYS_BIND,
		uintptr(s.Fd),
		uintptr(unsafe.Pointer(&sockaddr)),
		uintptr(unsafe.Sizeof(sockaddr)),
		0,
		0,
		0)
	if errno != 0 {
		return fmt.Errorf("bind %s: %w", address, errno)
	}

	// port 0 はカーネルが割り当てるので実際のアドレスを読み直す
	local, err := unix.Getsockname(int(s.Fd))
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	s.LocalAddr, err = AddrPortOf(local)
	if err != nil {
		return err
	}
	return nil
}

func (s *Socket) Listen(backlog int) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_LISTEN,
		uintptr(s.Fd),
		uintptr(backlog),
		0,
		0,
		0,
		0)
	if errno != 0 {
		return fmt.Errorf("listen: %w", errno)
	}
	return nil
}

// Accept takes one pending connection off the listen queue. The raw errno
// is returned unwrapped so callers can classify it.
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept4(int(s.Fd), unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, netip.AddrPort{}, err
	}
	remote, err := AddrPortOf(sa)
	if err != nil {
		// the connection is usable even if the address family is unexpected
		remote = netip.AddrPort{}
	}
	return &Socket{Fd: int32(nfd), LocalAddr: s.LocalAddr}, remote, nil
}

// SockError reads and clears the pending error on the socket (SO_ERROR).
// A zero errno means no error is pending.
func (s *Socket) SockError() (unix.Errno, error) {
	v, err := unix.GetsockoptInt(int(s.Fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	return unix.Errno(v), nil
}

func (s *Socket) SetNonblocking() error {
	return SetNonblocking(int(s.Fd))
}

func (s *Socket) Close() error {
	_, _, errno := unix.Syscall6(unix.SYS_CLOSE, uintptr(s.Fd), 0, 0, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// SetNonblocking sets O_NONBLOCK on fd. Calling it on a descriptor that is
// already non-blocking is a no-op.
func SetNonblocking(fd int) error {
	return setStatusFlag(fd, unix.O_NONBLOCK, true)
}

// SetBlocking clears O_NONBLOCK on fd.
func SetBlocking(fd int) error {
	return setStatusFlag(fd, unix.O_NONBLOCK, false)
}

// IsNonblocking reports whether O_NONBLOCK is set on fd.
func IsNonblocking(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, fmt.Errorf("fcntl F_GETFL: %w", err)
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

func setStatusFlag(fd int, flag int, on bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return fmt.Errorf("fcntl F_GETFL: %w", err)
	}
	next := flags &^ flag
	if on {
		next = flags | flag
	}
	if next == flags {
		return nil
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, next); err != nil {
		return fmt.Errorf("fcntl F_SETFL: %w", err)
	}
	return nil
}

// AddrPortOf converts a unix.Sockaddr of the inet families.
func AddrPortOf(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(addr.Addr), uint16(addr.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(addr.Addr), uint16(addr.Port)), nil
	default:
		return netip.AddrPort{}, unix.EAFNOSUPPORT
	}
}
