package turn

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	TurnID    string
	FromState State
	ToState   State
	Timestamp time.Time
	// Elapsed is the time spent in FromState.
	Elapsed time.Duration
	Reason  string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// ListenerFunc adapts a function to StateListener.
type ListenerFunc func(StateChange)

func (f ListenerFunc) OnStateChange(event StateChange) { f(event) }

var validTransitions = map[State][]State{
	StateIdle:        {StateDetecting},
	StateDetecting:   {StateClassifying, StateIdle},
	StateClassifying: {StateGenerating, StateIdle},
	StateGenerating:  {StateRendering, StateIdle},
	StateRendering:   {StateIdle},
}

// Machine is the per-conversation turn state machine. A turn walks
// Idle → Detecting → Classifying → Generating → Rendering → Idle; any
// non-idle state may also drop straight back to Idle when the turn is
// abandoned.
type Machine struct {
	mu        sync.RWMutex
	current   State
	turnID    string
	enteredAt time.Time
	listeners []StateListener
	now       func() time.Time
}

func NewMachine() *Machine {
	m := &Machine{current: StateIdle, now: time.Now}
	m.enteredAt = m.now()
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// TurnID returns the turn being processed, or "" when idle.
func (m *Machine) TurnID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.turnID
}

// Begin starts a turn: Idle → Detecting.
func (m *Machine) Begin(turnID string) error {
	return m.transition(StateDetecting, turnID, "turn submitted")
}

// Transition moves to a new state with validation.
func (m *Machine) Transition(state State, reason string) error {
	return m.transition(state, "", reason)
}

// Abort returns to Idle from any state. It is a no-op when already idle.
func (m *Machine) Abort(reason string) {
	if m.State() == StateIdle {
		return
	}
	_ = m.transition(StateIdle, "", reason)
}

func (m *Machine) transition(state State, turnID, reason string) error {
	m.mu.Lock()
	if !transitionValid(m.current, state) {
		from := m.current
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: state}
	}
	now := m.now()
	event := StateChange{
		TurnID:    m.turnID,
		FromState: m.current,
		ToState:   state,
		Timestamp: now,
		Elapsed:   now.Sub(m.enteredAt),
		Reason:    reason,
	}
	if turnID != "" {
		m.turnID = turnID
		event.TurnID = turnID
	}
	m.current = state
	m.enteredAt = now
	if state == StateIdle {
		m.turnID = ""
	}
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	// Listeners run without the lock so they may read State.
	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (m *Machine) AddListener(listener StateListener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

func transitionValid(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
