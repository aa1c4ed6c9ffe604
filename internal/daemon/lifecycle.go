package daemon

import (
	"sync"

	"github.com/bft-labs/infersock/internal/domain"
	"github.com/bft-labs/infersock/pkg/log"
)

// State represents the lifecycle state of the daemon.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// lifecycle guards the daemon state machine.
type lifecycle struct {
	mu      sync.RWMutex
	state   State
	logger  log.Logger
	handler EventHandler
}

func newLifecycle(logger log.Logger, handler EventHandler) *lifecycle {
	return &lifecycle{state: StateStopped, logger: logger, handler: handler}
}

func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to newState or returns ErrNotRunning / ErrAlreadyRunning
// if the move is not allowed from the current state.
func (l *lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state
	if !allowed(oldState, newState) {
		l.mu.Unlock()
		if oldState == StateStopped || oldState == StateCrashed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = newState
	l.mu.Unlock()

	if l.handler != nil {
		l.handler.OnStateChange(oldState, newState, reason)
	}
	l.logger.Debug("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func (l *lifecycle) CanStart() bool {
	s := l.State()
	return s == StateStopped || s == StateCrashed
}

func (l *lifecycle) CanStop() bool {
	s := l.State()
	return s == StateRunning || s == StateStarting
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
