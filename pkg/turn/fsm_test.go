package turn

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type captureListener struct {
	mu     sync.Mutex
	events []StateChange
}

func (c *captureListener) OnStateChange(event StateChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureListener) States() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.ToState)
	}
	return out
}

func TestMachineFullTurn(t *testing.T) {
	m := NewMachine()
	listener := &captureListener{}
	m.AddListener(listener)

	if err := m.Begin("t1"); err != nil {
		t.Fatalf("begin error: %v", err)
	}
	if m.TurnID() != "t1" {
		t.Fatalf("expected turn id t1, got %q", m.TurnID())
	}
	for _, s := range []State{StateClassifying, StateGenerating, StateRendering, StateIdle} {
		if err := m.Transition(s, "test"); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	want := []State{StateDetecting, StateClassifying, StateGenerating, StateRendering, StateIdle}
	got := listener.States()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if listener.events[4].TurnID != "t1" {
		t.Fatalf("expected turn id on final event")
	}
	if m.TurnID() != "" {
		t.Fatalf("expected turn id cleared when idle")
	}
}

func TestMachineRejectsSkippedStates(t *testing.T) {
	m := NewMachine()
	err := m.Transition(StateGenerating, "skip")
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if invalid.From != StateIdle || invalid.To != StateGenerating {
		t.Fatalf("unexpected error fields %+v", invalid)
	}
	_ = m.Begin("t1")
	if err := m.Begin("t2"); err == nil {
		t.Fatalf("expected error when beginning twice")
	}
}

func TestMachineAbort(t *testing.T) {
	m := NewMachine()
	m.Abort("noop")
	_ = m.Begin("t1")
	_ = m.Transition(StateClassifying, "ok")
	_ = m.Transition(StateGenerating, "ok")
	m.Abort("torn down")
	if m.State() != StateIdle {
		t.Fatalf("expected IDLE after abort, got %s", m.State())
	}
}

func TestMachineElapsed(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMachine()
	m.now = func() time.Time { return now }
	m.enteredAt = now

	var last StateChange
	m.AddListener(ListenerFunc(func(ev StateChange) { last = ev }))
	_ = m.Begin("t1")
	now = now.Add(40 * time.Millisecond)
	_ = m.Transition(StateClassifying, "detected")
	if last.Elapsed != 40*time.Millisecond || last.FromState != StateDetecting {
		t.Fatalf("unexpected event %+v", last)
	}
}

func TestStateString(t *testing.T) {
	if StateGenerating.String() != "GENERATING" || State(99).String() != "UNKNOWN" {
		t.Fatalf("unexpected state names")
	}
}
