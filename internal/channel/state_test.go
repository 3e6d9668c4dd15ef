package channel

import (
	"testing"
	"time"

	"github.com/matheus3301/momento/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("/chat/ws", nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	paths := [][]State{
		{Connecting, Open, ClosedClean},
		{Connecting, Open, ClosedError, Reconnecting, Connecting, Open},
		{Connecting, ClosedError, Reconnecting, Connecting},
		{Connecting, Open, ClosedClean, Connecting},
		{Connecting, ClosedError, Reconnecting, ClosedClean},
	}
	for _, path := range paths {
		m := NewMachine("/chat/ws", nil)
		for _, to := range path {
			if err := m.Transition(to); err != nil {
				t.Errorf("path %v: %v", path, err)
				break
			}
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		walk []State
		to   State
	}{
		{nil, Open},
		{nil, Reconnecting},
		{[]State{Connecting, Open}, Reconnecting},
		{[]State{Connecting, Open}, Connecting},
		{[]State{Connecting, Open, ClosedClean}, Reconnecting},
	}
	for _, tt := range tests {
		m := NewMachine("/chat/ws", nil)
		for _, s := range tt.walk {
			if err := m.Transition(s); err != nil {
				t.Fatal(err)
			}
		}
		if err := m.Transition(tt.to); err == nil {
			t.Errorf("Transition(%s -> %s) should fail", m.Current(), tt.to)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("channel.", 10)
	defer unsub()

	m := NewMachine("/chat/ws", b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindChannelState {
			t.Errorf("event kind = %q", evt.Kind)
		}
		change, ok := evt.Payload.(StateChange)
		if !ok {
			t.Fatalf("payload type = %T, want StateChange", evt.Payload)
		}
		if change.From != Disconnected || change.To != Connecting || change.Path != "/chat/ws" {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestPolicies(t *testing.T) {
	if d := Fixed(3 * time.Second).Delay(10); d != 3*time.Second {
		t.Errorf("fixed delay = %s", d)
	}
	e := Exponential{Base: time.Second, Max: 10 * time.Second, Jitter: 0.5, Rand: func() float64 { return 1 }}
	// Rand()=1 gives the maximum +50%.
	if d := e.Delay(1); d != 1500*time.Millisecond {
		t.Errorf("attempt 1 = %s", d)
	}
	if d := e.Delay(10); d != 15*time.Second {
		t.Errorf("attempt 10 = %s, want capped 10s plus jitter", d)
	}
	e.Rand = func() float64 { return 0.5 }
	if d := e.Delay(3); d != 4*time.Second {
		t.Errorf("attempt 3 without jitter offset = %s", d)
	}
}
