package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOne(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeTyped(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(SessionUpdated)
	defer unsub()

	b.Publish(Event{Type: MessageCreated, Data: "ignored"})
	b.Publish(Event{Type: SessionUpdated, Data: "hit"})

	e := recvOne(t, ch)
	assert.Equal(t, SessionUpdated, e.Type)
	assert.Equal(t, "hit", e.Data)
}

func TestSubscribeAll(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.SubscribeAll()
	defer unsub()

	published := []EventType{SessionUpdated, MessageCreated, FileEdited}
	for _, typ := range published {
		b.Publish(Event{Type: typ})
	}

	for _, want := range published {
		assert.Equal(t, want, recvOne(t, ch).Type)
	}
}

func TestPublishOrder(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(MessagePartUpdated)
	defer unsub()

	for i := 0; i < 50; i++ {
		b.Publish(Event{Type: MessagePartUpdated, Data: i})
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, recvOne(t, ch).Data)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.SubscribeAll()
	defer unsub()

	// Nobody drains: overflow the queue by one.
	for i := 0; i <= QueueSize; i++ {
		b.Publish(Event{Type: StorageUpdated, Data: i})
	}

	// Event 0 was dropped; delivery resumes at 1 and the newest event
	// made it in.
	first := recvOne(t, ch)
	assert.Equal(t, 1, first.Data)

	last := first
	for len(ch) > 0 {
		last = recvOne(t, ch)
	}
	assert.Equal(t, QueueSize, last.Data)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ch, unsub := b.Subscribe(SessionIdle)
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "unsubscribed channel should be closed")

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: SessionIdle})
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	b := New()
	ch, _ := b.SubscribeAll()

	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok)

	// Subscribing after close yields a closed channel.
	ch2, _ := b.SubscribeAll()
	_, ok = <-ch2
	assert.False(t, ok)
}
