//go:build linux

package engine

import (
	"context"
	"time"

	"github.com/cdoenges/misclib/core/event"
)

// NetEngine is a readiness set that is rebuilt before every wait.
type NetEngine interface {
	// Reset forgets every watched descriptor.
	Reset()
	// Watch adds fd to the set. tag is returned untouched in NetEvent.Tag.
	Watch(fd int32, role event.Role, tag uint64)
	// Len is the number of watched descriptors.
	Len() int
	// MaxFd is the highest watched descriptor, or -1 when the set is empty.
	MaxFd() int32
	// Wait blocks until a watched descriptor is readable or in error, or
	// the timeout passes. A timeout yields no events and no error.
	Wait(ctx context.Context, timeout time.Duration) ([]*NetEvent, error)
}
