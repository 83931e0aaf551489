//go:build linux

package event

import "fmt"

type EventType int

const (
	EVENT_TYPE_ACCEPT EventType = iota
	EVENT_TYPE_READ
	EVENT_TYPE_ERROR
)

func (et EventType) String() string {
	switch et {
	case EVENT_TYPE_ACCEPT:
		return "EVENT_TYPE_ACCEPT"
	case EVENT_TYPE_READ:
		return "EVENT_TYPE_READ"
	case EVENT_TYPE_ERROR:
		return "EVENT_TYPE_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN: %d", et)
	}
}

// Role tells the engine whether a watched descriptor accepts connections
// or carries a client's data.
type Role uint8

const (
	RoleListener Role = iota + 1
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleListener:
		return "listener"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("role(%d)", r)
	}
}
