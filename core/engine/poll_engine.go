//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cdoenges/misclib/core/event"
)

const (
	pollEventWatch = unix.POLLIN | unix.POLLPRI
	pollEventError = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
)

// PollEngine waits with poll(2) on a dynamically sized set of descriptors.
// poll writes its results into the same array it reads, so the set is
// meant to be Reset and refilled before each Wait.
type PollEngine struct {
	fds   []unix.PollFd
	roles []event.Role
	tags  []uint64
	maxFd int32
}

func NewPollEngine() *PollEngine {
	return &PollEngine{maxFd: -1}
}

func (e *PollEngine) Reset() {
	e.fds = e.fds[:0]
	e.roles = e.roles[:0]
	e.tags = e.tags[:0]
	e.maxFd = -1
}

func (e *PollEngine) Watch(fd int32, role event.Role, tag uint64) {
	e.fds = append(e.fds, unix.PollFd{Fd: fd, Events: pollEventWatch})
	e.roles = append(e.roles, role)
	e.tags = append(e.tags, tag)
	if fd > e.maxFd {
		e.maxFd = fd
	}
}

func (e *PollEngine) Len() int {
	return len(e.fds)
}

func (e *PollEngine) MaxFd() int32 {
	return e.maxFd
}

func (e *PollEngine) Wait(ctx context.Context, timeout time.Duration) ([]*NetEvent, error) {
	n, err := unix.Poll(e.fds, pollTimeoutMs(timeout))
	if err != nil {
		// シグナルで起こされただけならタイムアウトと同じ扱い
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	netEvents := make([]*NetEvent, 0, n)
	for i := 0; i < len(e.fds) && n > 0; i++ {
		revents := e.fds[i].Revents
		if revents == 0 {
			continue
		}
		n--

		ev := &NetEvent{
			Role:   e.roles[i],
			Fd:     e.fds[i].Fd,
			Tag:    e.tags[i],
			Failed: revents&pollEventError != 0,
		}
		switch {
		case revents&pollEventWatch != 0 && ev.Role == event.RoleListener:
			ev.EventType = event.EVENT_TYPE_ACCEPT
		case revents&pollEventWatch != 0:
			ev.EventType = event.EVENT_TYPE_READ
		default:
			ev.EventType = event.EVENT_TYPE_ERROR
		}
		netEvents = append(netEvents, ev)
	}
	return netEvents, nil
}

// pollTimeoutMs rounds up so a sub-millisecond timeout does not turn
// into a busy loop. A negative timeout blocks indefinitely.
func pollTimeoutMs(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
