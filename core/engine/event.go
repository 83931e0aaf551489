//go:build linux

package engine

import (
	"github.com/cdoenges/misclib/core/event"
)

type NetEvent struct {
	EventType event.EventType
	Role      event.Role
	Fd        int32
	// Tag is the value handed to Watch for this descriptor.
	Tag uint64
	// Failed is set when the descriptor is also in the error set, which
	// can accompany a readable event (data followed by a hangup).
	Failed bool
}
