package peer

// 参考: https://go.googlesource.com/go/%2B/master/src/net/http/server.go#3267
type ConnState int32

const (
	StateNew    ConnState = iota
	StateActive           // attached to a slot and watched
	// StateOrphaned marks a client whose slot was taken over by a newer
	// connection; the reactor never services or closes it again.
	StateOrphaned
	StateClosed
)

var stateName = map[ConnState]string{
	StateNew:      "new",
	StateActive:   "active",
	StateOrphaned: "orphaned",
	StateClosed:   "closed",
}

func (s ConnState) String() string {
	return stateName[s]
}
