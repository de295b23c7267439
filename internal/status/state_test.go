package status

import (
	"testing"
	"time"

	"github.com/perkshq/perks/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Offline},
		{Booting, Ready},
		{Booting, Error},
		{Offline, Syncing},
		{Syncing, Ready},
		{Syncing, Degraded},
		{Ready, Offline},
		{Degraded, Syncing},
		{Ready, Syncing},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Degraded); err == nil {
		t.Error("Transition(BOOTING -> DEGRADED) should fail")
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Booting); err != nil {
		t.Errorf("self transition error = %v", err)
	}

	select {
	case evt := <-ch:
		t.Errorf("self transition published event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no event.
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Offline); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != Offline {
			t.Errorf("change = %+v, want BOOTING -> OFFLINE", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

// walkTo drives the machine to the target state through valid transitions.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	var path []State
	switch target {
	case Booting:
		path = nil
	case Offline, Ready:
		path = []State{target}
	case Syncing:
		path = []State{Offline, Syncing}
	case Degraded:
		path = []State{Offline, Syncing, Degraded}
	case Error:
		path = []State{Error}
	}
	for _, s := range path {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
