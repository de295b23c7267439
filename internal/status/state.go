package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/perkshq/perks/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting State = "BOOTING"
	// Offline: connectivity lost, queue holding sends.
	Offline State = "OFFLINE"
	// Syncing: queue drain or cache refresh in progress.
	Syncing State = "SYNCING"
	// Ready: online, queue empty of failures, nothing in flight.
	Ready State = "READY"
	// Degraded: online but one or more sends are stuck failed.
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Offline, Syncing, Ready, Error},
	Offline:  {Syncing, Ready, Error},
	Syncing:  {Ready, Degraded, Offline, Error},
	Ready:    {Syncing, Offline, Degraded, Error},
	Degraded: {Syncing, Ready, Offline, Error},
	Error:    {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Transitioning to the current
// state is a no-op; an invalid transition returns an error.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
