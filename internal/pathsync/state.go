package pathsync

// State is the engine lifecycle:
//
//	UNINITIALIZED --bootstrap ok--> DRAINING --queue empty--> READY
//	UNINITIALIZED --bootstrap fail--> FAILED
//
// READY and FAILED are terminal for the engine's lifetime.
type State int32

const (
	StateUninitialized State = iota
	StateDraining
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDraining:
		return "draining"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
