package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStoreChanged, Timestamp: time.Now(), Payload: "chat"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStoreChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStoreChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("channel.", 10)
	defer unsub()

	b.Emit(KindSyncCompleted, nil)
	b.Emit(KindChannelState, "open")

	select {
	case evt := <-ch:
		if evt.Kind != KindChannelState {
			t.Errorf("got kind %q, want %s", evt.Kind, KindChannelState)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: KindAlert})
	evt := <-ch
	if evt.Timestamp.IsZero() {
		t.Error("timestamp not set on publish")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub() // second call is a no-op

	b.Emit(KindSignedOut, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 1)
	defer unsub()

	b.Emit(KindSyncCompleted, "friends")
	b.Emit(KindSyncCompleted, "chats")

	evt := <-ch
	if evt.Payload != "friends" {
		t.Errorf("got %v, want friends", evt.Payload)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Emit(KindAlert, nil) // must not panic
}
