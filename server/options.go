//go:build linux

package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cdoenges/misclib/core/engine"
)

// DefaultWaitTimeout bounds each readiness wait so the loop notices a
// cancelled context promptly.
const DefaultWaitTimeout = 250 * time.Millisecond

// ClientPolicy decides how many clients a port's slot holds at once.
type ClientPolicy int

const (
	// ClientPolicyMulti keeps every accepted client of a port attached.
	ClientPolicyMulti ClientPolicy = iota
	// ClientPolicySingle keeps one client per port. A newer connection
	// replaces the tracked one; the replaced descriptor is left open and
	// never serviced again.
	ClientPolicySingle
)

func (p ClientPolicy) String() string {
	switch p {
	case ClientPolicyMulti:
		return "multi"
	case ClientPolicySingle:
		return "single"
	default:
		return fmt.Sprintf("client-policy(%d)", int(p))
	}
}

func ParseClientPolicy(s string) (ClientPolicy, error) {
	switch s {
	case "", "multi":
		return ClientPolicyMulti, nil
	case "single":
		return ClientPolicySingle, nil
	default:
		return 0, fmt.Errorf("unknown client policy %q (want single or multi)", s)
	}
}

// AcceptErrorPolicy decides whether a failed accept ends the reactor.
type AcceptErrorPolicy int

const (
	// AcceptErrorFatal terminates the reactor on any accept failure.
	AcceptErrorFatal AcceptErrorPolicy = iota
	// AcceptErrorSkipTransient logs and skips failures that can clear up
	// on their own (descriptor or memory exhaustion, aborted handshakes).
	AcceptErrorSkipTransient
)

func (p AcceptErrorPolicy) String() string {
	switch p {
	case AcceptErrorFatal:
		return "fatal"
	case AcceptErrorSkipTransient:
		return "skip-transient"
	default:
		return fmt.Sprintf("accept-error-policy(%d)", int(p))
	}
}

func ParseAcceptErrorPolicy(s string) (AcceptErrorPolicy, error) {
	switch s {
	case "", "fatal":
		return AcceptErrorFatal, nil
	case "skip-transient":
		return AcceptErrorSkipTransient, nil
	default:
		return 0, fmt.Errorf("unknown accept error policy %q (want fatal or skip-transient)", s)
	}
}

type Options struct {
	// WaitTimeout bounds each readiness wait. Zero or less means
	// DefaultWaitTimeout.
	WaitTimeout time.Duration
	// Backlog is the listen queue length; zero means engine.DefaultBacklog.
	Backlog      int
	ClientPolicy ClientPolicy
	AcceptErrors AcceptErrorPolicy
	// ExitOnIdle ends the reactor cleanly when a wait times out with no
	// activity on any port.
	ExitOnIdle bool

	Logger  *slog.Logger
	Metrics *Metrics
	// Engine replaces the poll(2) readiness set, mostly for tests.
	Engine engine.NetEngine
}

func (o Options) withDefaults() Options {
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.Backlog <= 0 {
		o.Backlog = engine.DefaultBacklog
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Engine == nil {
		o.Engine = engine.NewPollEngine()
	}
	return o
}
