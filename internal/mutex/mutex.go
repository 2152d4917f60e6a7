package mutex

import (
	"errors"
	"fmt"

	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/messages"
	"github.com/kayua/Ricart-Agrawala-Algorithm/internal/timestamps"
)

// Pid is a unique identifier for a peer participating in the mutex algorithm.
type Pid = timestamps.Pid
type timestamp = timestamps.Timestamp

// ErrAlreadyRequesting is returned by BeginRequest while a previous request is outstanding or being served.
var ErrAlreadyRequesting = errors.New("a request is already in progress")

// State of the engine with respect to the critical section.
type State uint8

const (
	// Idle is the state of a peer neither requesting nor holding the critical section.
	Idle State = iota
	// Requesting is the state of a peer waiting for replies.
	Requesting
	// InCriticalSection is the state of a peer running the critical-section body.
	InCriticalSection
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Requesting:
		return "REQUESTING"
	case InCriticalSection:
		return "IN_CRITICAL_SECTION"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ParseState is the inverse of [State.String].
func ParseState(s string) (State, error) {
	for _, state := range []State{Idle, Requesting, InCriticalSection} {
		if state.String() == s {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

// Network is how the engine reaches the other peers.
type Network interface {
	// Send delivers a message to the given peer.
	Send(to Pid, msg messages.Message) error
}

// Cycle identifies one request for the critical section, from BeginRequest to the exit action.
type Cycle struct {
	ID        string
	Peer      Pid
	Timestamp float64
}

// CriticalSection is the body protected by the protocol.
type CriticalSection interface {
	Run(c Cycle) error
}

// CriticalSectionFunc adapts a function to the [CriticalSection] interface.
type CriticalSectionFunc func(c Cycle) error

func (f CriticalSectionFunc) Run(c Cycle) error {
	return f(c)
}

// Snapshot is a copy of an engine's state at one instant.
type Snapshot struct {
	Peer           Pid
	State          State
	Requesting     bool
	Timestamp      float64
	PendingReplies int
	Deferred       []Pid
	Cycle          string
	Entries        uint64
}
