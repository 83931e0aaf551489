package peer

import (
	"io"
	"net/netip"
)

type Endpoint interface {
	io.ReadWriter
	Fd() int32
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
	Status() string
}
