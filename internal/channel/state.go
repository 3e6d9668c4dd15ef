package channel

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/momento/internal/bus"
)

// State is the connection state of a push channel.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
	ClosedClean  State = "CLOSED_CLEAN"
	ClosedError  State = "CLOSED_ERROR"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, ClosedClean},
	Connecting:   {Open, ClosedError, ClosedClean},
	Open:         {ClosedClean, ClosedError},
	ClosedError:  {Reconnecting, Connecting, ClosedClean},
	Reconnecting: {Connecting, ClosedClean},
	ClosedClean:  {Connecting},
}

// Machine tracks and enforces channel state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	path    string
	bus     *bus.Bus
}

// NewMachine creates a state machine for the channel at path, starting Disconnected.
func NewMachine(path string, b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		path:    path,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
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
	m.bus.Publish(bus.Event{
		Kind:      bus.KindChannelState,
		Timestamp: time.Now(),
		Payload: StateChange{
			Path: m.path,
			From: from,
			To:   to,
		},
	})
	return nil
}

// StateChange is the payload for channel state events.
type StateChange struct {
	Path string
	From State
	To   State
}
