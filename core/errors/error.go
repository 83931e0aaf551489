package terrr

import (
	"errors"
	"fmt"
)

// ErrWouldBlock は、非ブロッキング操作がすぐに完了できない場合に返されるエラー
var ErrWouldBlock = errors.New("operation would block")

// ErrInvalidRegistry is returned when a port registry cannot be served.
var ErrInvalidRegistry = errors.New("invalid port registry")

// Phase names the step of the reactor's life in which an error occurred.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseSocket
	PhaseBind
	PhaseNonBlocking
	PhaseListen
	PhaseWait
	PhaseAccept
	PhaseErrorQuery
	PhaseSockOpt
	PhaseRegistry
)

var phaseName = map[Phase]string{
	PhaseNone:        "none",
	PhaseSocket:      "socket",
	PhaseBind:        "bind",
	PhaseNonBlocking: "nonblocking",
	PhaseListen:      "listen",
	PhaseWait:        "wait",
	PhaseAccept:      "accept",
	PhaseErrorQuery:  "error-query",
	PhaseSockOpt:     "sockopt",
	PhaseRegistry:    "registry",
}

func (p Phase) String() string {
	if name, ok := phaseName[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Status is the reactor entry point's return code. Zero is a clean
// termination; every failing phase has its own negative value.
type Status int

const (
	StatusOK          Status = 0
	StatusSocket      Status = -1
	StatusBind        Status = -2
	StatusNonBlocking Status = -3
	StatusListen      Status = -4
	StatusWait        Status = -5
	StatusAccept      Status = -6
	StatusErrorQuery  Status = -7
	StatusSockOpt     Status = -8
	StatusRegistry    Status = -9
	// StatusUnknown is reported for errors that did not come from the reactor.
	StatusUnknown Status = -127
)

var phaseStatus = map[Phase]Status{
	PhaseNone:        StatusOK,
	PhaseSocket:      StatusSocket,
	PhaseBind:        StatusBind,
	PhaseNonBlocking: StatusNonBlocking,
	PhaseListen:      StatusListen,
	PhaseWait:        StatusWait,
	PhaseAccept:      StatusAccept,
	PhaseErrorQuery:  StatusErrorQuery,
	PhaseSockOpt:     StatusSockOpt,
	PhaseRegistry:    StatusRegistry,
}

// Status returns the entry point status belonging to the phase.
func (p Phase) Status() Status {
	if s, ok := phaseStatus[p]; ok {
		return s
	}
	return StatusUnknown
}

// ReactorError carries the failing phase and, when known, the port.
type ReactorError struct {
	Phase Phase
	Port  uint16
	Err   error
}

func New(phase Phase, port uint16, err error) *ReactorError {
	return &ReactorError{Phase: phase, Port: port, Err: err}
}

func (e *ReactorError) Error() string {
	if e.Port != 0 {
		return fmt.Sprintf("%s failed on port %d: %v", e.Phase, e.Port, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *ReactorError) Unwrap() error {
	return e.Err
}

// Status returns the entry point status for the error's phase.
func (e *ReactorError) Status() Status {
	return e.Phase.Status()
}

// StatusOf maps an error returned by the reactor to its status code.
// A nil error is a clean termination.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var re *ReactorError
	if errors.As(err, &re) {
		return re.Status()
	}
	if errors.Is(err, ErrInvalidRegistry) {
		return StatusRegistry
	}
	return StatusUnknown
}

// PhaseOf returns the phase recorded in err, or PhaseNone.
func PhaseOf(err error) Phase {
	var re *ReactorError
	if errors.As(err, &re) {
		return re.Phase
	}
	return PhaseNone
}
