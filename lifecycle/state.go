package lifecycle

import "fmt"

// Epoch identifies one reconfiguration (or the final teardown) of a Controller.
// Epochs strictly increase over the life of a controller.
type Epoch uint64

// State is the lifecycle state of a Controller.
type State uint8

const (
	// StateUninitialized means Reconfigure has never been called.
	StateUninitialized State = iota
	// StateConstructing means a construction for the active epoch is pending.
	StateConstructing
	// StateReady means a handle is installed and may be borrowed.
	StateReady
	// StateFailed means the construction for the active epoch failed.
	StateFailed
	// StateDestroyed means the controller was torn down. It is terminal.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConstructing:
		return "constructing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Snapshot is a point-in-time view of a Controller.
type Snapshot struct {
	Epoch Epoch
	State State
	// Err is the construction error when State is StateFailed.
	Err error
	// Changed is closed on the next state change after this snapshot.
	Changed <-chan struct{}
}

// Ready reports whether a handle was available when the snapshot was taken.
func (s Snapshot) Ready() bool {
	return s.State == StateReady
}
