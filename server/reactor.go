//go:build linux

package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/cdoenges/misclib/core/engine"
	terrr "github.com/cdoenges/misclib/core/errors"
	"github.com/cdoenges/misclib/core/event"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

var stateName = map[State]string{
	StateIdle:       "idle",
	StateRunning:    "running",
	StateTerminated: "terminated",
}

func (s State) String() string {
	if name, ok := stateName[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Reactor serves every port of a Registry from a single goroutine. All
// callbacks run on the goroutine that called Serve.
type Reactor struct {
	registry *Registry
	opts     Options
	log      *slog.Logger
	metrics  *Metrics

	listeners engine.ListenerSet
	ports     []uint16
	state     atomic.Int32

	acceptLog rate.Sometimes
}

func New(reg *Registry, opts Options) *Reactor {
	opts = opts.withDefaults()
	return &Reactor{
		registry:  reg,
		opts:      opts,
		log:       opts.Logger.With("component", "reactor"),
		metrics:   opts.Metrics,
		acceptLog: rate.Sometimes{First: 1, Interval: time.Second},
	}
}

func (r *Reactor) State() State {
	return State(r.state.Load())
}

// Listen opens a listener for every registered port, in order. If one
// fails, the listeners opened before it are closed again and the error
// names the failing step.
func (r *Reactor) Listen(ctx context.Context) error {
	if r.listeners != nil {
		return nil
	}
	set, err := engine.ListenAll(r.registry.Ports(), r.opts.Backlog)
	if err != nil {
		if cerr := set.Close(); cerr != nil {
			r.log.WarnContext(ctx, "Failed to close listeners after setup failure", "error", cerr)
		}
		r.log.ErrorContext(ctx, "Failed to set up listener", "phase", terrr.PhaseOf(err), "error", err)
		return err
	}
	r.listeners = set
	r.ports = make([]uint16, len(set))
	for i, l := range set {
		r.ports[i] = l.Addr().Port()
		r.log.InfoContext(ctx, "Listening on", "port", r.ports[i], "fd", l.Fd())
	}
	return nil
}

// Ports reports the bound port of each registry entry after Listen, with
// kernel-chosen ports resolved.
func (r *Reactor) Ports() []uint16 {
	return append([]uint16(nil), r.ports...)
}

// reactorState is everything the loop mutates. It lives for one Serve call.
type reactorState struct {
	slots      []*slot
	engine     engine.NetEngine
	ready      *queue.Queue
	maxFd      int32
	terminated bool
	err        error
}

// terminate ends the loop after the current dispatch. The first error wins.
func (st *reactorState) terminate(err error) {
	if !st.terminated {
		st.err = err
	}
	st.terminated = true
}

// Serve runs the readiness loop until a fatal error, a StopReactor
// verdict, ctx cancellation, or nothing is left to watch. Listen is called
// first if it has not been. A nil error means a clean termination.
func (r *Reactor) Serve(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("reactor is %s", r.State())
	}
	if r.registry.Len() == 0 {
		r.state.Store(int32(StateTerminated))
		return nil
	}
	if err := r.Listen(ctx); err != nil {
		r.state.Store(int32(StateTerminated))
		return err
	}

	st := &reactorState{
		slots:  make([]*slot, r.registry.Len()),
		engine: r.opts.Engine,
		ready:  queue.New(),
		maxFd:  -1,
	}
	for i := range st.slots {
		st.slots[i] = &slot{
			index:    i,
			port:     r.ports[i],
			conf:     r.registry.Entry(i),
			listener: r.listeners[i],
		}
	}

	r.log.InfoContext(ctx, "Reactor running", "ports", r.ports, "clientPolicy", r.opts.ClientPolicy, "waitTimeout", r.opts.WaitTimeout)
	for !st.terminated {
		if err := ctx.Err(); err != nil {
			r.log.InfoContext(ctx, "Context done, stopping reactor", "cause", context.Cause(ctx))
			st.terminate(nil)
			break
		}
		r.iterate(ctx, st)
	}

	r.shutdown(ctx, st)
	r.state.Store(int32(StateTerminated))
	if st.err != nil {
		r.log.ErrorContext(ctx, "Reactor terminated", "phase", terrr.PhaseOf(st.err), "error", st.err)
	} else {
		r.log.InfoContext(ctx, "Reactor terminated")
	}
	return st.err
}

// iterate is one pass: rebuild the watch set, wait, then handle every
// ready descriptor in watch order.
func (r *Reactor) iterate(ctx context.Context, st *reactorState) {
	st.engine.Reset()
	for _, s := range st.slots {
		if s.listener != nil {
			st.engine.Watch(s.listener.Fd(), event.RoleListener, encodeTag(s.index, s.listener.Fd()))
		}
		for _, c := range s.clients {
			st.engine.Watch(c.Fd(), event.RoleClient, encodeTag(s.index, c.Fd()))
		}
	}
	if st.engine.Len() == 0 {
		r.log.WarnContext(ctx, "No listener or client left to watch")
		st.terminate(nil)
		return
	}
	st.maxFd = st.engine.MaxFd()
	r.log.DebugContext(ctx, "Waiting for readiness", "watched", st.engine.Len(), "maxFd", st.maxFd)

	events, err := st.engine.Wait(ctx, r.opts.WaitTimeout)
	if err != nil {
		r.log.ErrorContext(ctx, "Failed to wait for readiness", "phase", terrr.PhaseWait, "maxFd", st.maxFd, "error", err)
		st.terminate(terrr.New(terrr.PhaseWait, 0, err))
		return
	}
	if len(events) == 0 {
		if r.opts.ExitOnIdle {
			r.log.InfoContext(ctx, "Idle timeout, stopping reactor")
			st.terminate(nil)
		}
		return
	}
	r.metrics.readyEvents(len(events))

	for _, ev := range events {
		st.ready.Add(ev)
	}
	for st.ready.Length() > 0 {
		ev := st.ready.Remove().(*engine.NetEvent)
		if st.terminated {
			continue
		}
		r.dispatch(ctx, st, ev)
	}
}

// shutdown closes listeners and attached clients. Orphaned descriptors
// were dropped from the slots and stay as they are.
func (r *Reactor) shutdown(ctx context.Context, st *reactorState) {
	var err error
	for _, s := range st.slots {
		if s.listener != nil {
			err = multierr.Append(err, s.listener.Close())
			s.listener = nil
		}
	}
	r.listeners = nil
	if err != nil {
		r.log.WarnContext(ctx, "Failed to close listeners", "error", err)
	}

	for _, s := range st.slots {
		for len(s.clients) > 0 {
			r.closeClient(ctx, s, s.clients[0], reasonShutdown)
		}
	}
}

// Run listens and serves, turning the outcome into a status code.
func (r *Reactor) Run(ctx context.Context) terrr.Status {
	return terrr.StatusOf(r.Serve(ctx))
}

// Run serves configs until the reactor terminates and returns its status:
// terrr.StatusOK for a clean end, a negative code naming the failing step
// otherwise.
func Run(ctx context.Context, configs []PortConfiguration, opts Options) terrr.Status {
	reg, err := NewRegistry(configs...)
	if err != nil {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(ctx, "Invalid port registry", "error", err)
		return terrr.StatusOf(terrr.New(terrr.PhaseRegistry, 0, err))
	}
	return New(reg, opts).Run(ctx)
}
