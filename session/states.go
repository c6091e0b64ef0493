package session

import (
	"fmt"
	"sync"

	"voiceturn/core"
)

// State is the session lifecycle state. Transitions are validated; an
// illegal one is rejected with a ConflictError instead of being applied.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateUserSpeaking
	StateProcessing
	StateAgentSpeaking
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateUserSpeaking:
		return "user_speaking"
	case StateProcessing:
		return "processing"
	case StateAgentSpeaking:
		return "agent_speaking"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConflictError reports an attempted transition the machine does not
// allow. It unwraps to core.ErrStateConflict.
type ConflictError struct {
	From State
	To   State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("illegal session transition %s -> %s", e.From, e.To)
}

func (e *ConflictError) Unwrap() error { return core.ErrStateConflict }

var transitions = map[State][]State{
	StateIdle:          {StateConnecting, StateClosed},
	StateConnecting:    {StateReady, StateClosed},
	StateReady:         {StateUserSpeaking, StateProcessing, StateAgentSpeaking, StateClosed},
	StateUserSpeaking:  {StateProcessing, StateReady, StateClosed},
	StateProcessing:    {StateAgentSpeaking, StateReady, StateUserSpeaking, StateClosed},
	StateAgentSpeaking: {StateReady, StateUserSpeaking, StateClosed},
	StateClosed:        {},
}

// StateMachine guards the session state. All writes funnel through Apply;
// Current is safe from any goroutine.
type StateMachine struct {
	mu      sync.Mutex
	current State
	logger  *core.Logger
}

func NewStateMachine(logger *core.Logger) *StateMachine {
	return &StateMachine{current: StateIdle, logger: logger}
}

func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Apply moves the machine to the target state. Closing an already-closed
// session is a no-op; every other illegal transition returns a
// ConflictError and leaves the state unchanged.
func (m *StateMachine) Apply(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.current
	if from == to {
		return nil
	}
	if from == StateClosed && to == StateClosed {
		return nil
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			m.current = to
			if m.logger != nil {
				m.logger.With(map[string]any{"from": from.String(), "to": to.String()}).Debug("session state changed")
			}
			return nil
		}
	}
	return &ConflictError{From: from, To: to}
}

// Closed reports whether the session reached its terminal state.
func (m *StateMachine) Closed() bool {
	return m.Current() == StateClosed
}
