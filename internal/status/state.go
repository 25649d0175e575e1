package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
)

// State represents the client runtime state.
type State string

const (
	Booting    State = "BOOTING"
	SignedOut  State = "SIGNED_OUT"
	Connecting State = "CONNECTING"
	Ready      State = "READY"
	Offline    State = "OFFLINE"  // signed in, network services unreachable; local only
	Degraded   State = "DEGRADED" // transport up, relay or blob storage missing
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:    {SignedOut, Connecting, Error},
	SignedOut:  {Connecting, Error},
	Connecting: {Ready, Degraded, Offline, SignedOut, Error},
	Ready:      {Degraded, Offline, SignedOut, Error},
	Degraded:   {Ready, Offline, SignedOut, Error},
	Offline:    {Connecting, SignedOut, Error},
	Error:      {Booting},
}

// Machine tracks and enforces client runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// SignedIn reports whether the state implies an authenticated user.
func (m *Machine) SignedIn() bool {
	switch m.Current() {
	case Ready, Degraded, Offline, Connecting:
		return true
	}
	return false
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Publish(bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: m.since,
		Payload: StatusChange{
			From: from,
			To:   to,
		},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
