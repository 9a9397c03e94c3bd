// Package bus provides the process-wide typed pub/sub event bus.
//
// Publish never blocks: each subscriber owns a bounded queue and when the
// queue is full the oldest event for that subscriber is dropped with a
// diagnostic. Events published from a single goroutine are delivered to
// each subscriber in publish order.
package bus

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tandemcode/tandem/internal/logging"
)

// EventType names a bus event.
type EventType string

const (
	SessionUpdated      EventType = "session.updated"
	SessionRemoved      EventType = "session.removed"
	SessionIdle         EventType = "session.idle"
	SessionError        EventType = "session.error"
	MessageCreated      EventType = "message.created"
	MessagePartUpdated  EventType = "message.part.updated"
	MessageCompleted    EventType = "message.completed"
	PermissionRequested EventType = "permission.requested"
	PermissionGranted   EventType = "permission.granted"
	PermissionDenied    EventType = "permission.denied"
	StorageUpdated      EventType = "storage.updated"
	FileEdited          EventType = "file.edited"
	TodoUpdated         EventType = "todo.updated"
	Error               EventType = "error"
)

// Event is one bus message.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"properties"`
}

// QueueSize bounds each subscriber's queue.
const QueueSize = 100

// subscriber is one bounded delivery queue. types == nil subscribes to
// every event.
type subscriber struct {
	id    uint64
	types map[EventType]bool
	ch    chan Event
}

// Bus is the event bus. The subscriber registry is copy-on-write so
// dispatch never takes a lock.
type Bus struct {
	mu     sync.Mutex
	subs   atomic.Pointer[[]*subscriber]
	nextID uint64
	closed bool

	// Watermill mirror of the event flow, kept for middleware and for
	// bridging to distributed backends.
	pubsub *gochannel.GoChannel
}

// Topic is the watermill topic every event is mirrored onto.
const Topic = "tandem.events"

// New creates an event bus.
func New() *Bus {
	b := &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: QueueSize},
			watermill.NopLogger{},
		),
	}
	empty := []*subscriber{}
	b.subs.Store(&empty)
	return b
}

// Subscribe returns a channel receiving events of the given types and an
// unsubscribe function. With no types it behaves like SubscribeAll.
func (b *Bus) Subscribe(types ...EventType) (<-chan Event, func()) {
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}
	return b.add(filter)
}

// SubscribeAll returns a channel receiving every event.
func (b *Bus) SubscribeAll() (<-chan Event, func()) {
	return b.add(nil)
}

func (b *Bus) add(filter map[EventType]bool) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	sub := &subscriber{id: b.nextID, types: filter, ch: make(chan Event, QueueSize)}

	cur := *b.subs.Load()
	next := make([]*subscriber, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, sub)
	b.subs.Store(&next)

	return sub.ch, func() { b.remove(sub.id) }
}

func (b *Bus) remove(subID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.subs.Load()
	next := make([]*subscriber, 0, len(cur))
	for _, s := range cur {
		if s.id == subID {
			close(s.ch)
			continue
		}
		next = append(next, s)
	}
	b.subs.Store(&next)
}

// Publish delivers the event to every matching subscriber without
// blocking. A subscriber that has fallen QueueSize events behind loses
// its oldest queued event.
func (b *Bus) Publish(e Event) {
	for _, s := range *b.subs.Load() {
		if s.types != nil && !s.types[e.Type] {
			continue
		}
		select {
		case s.ch <- e:
		default:
			// Queue full: make room by dropping the oldest entry.
			select {
			case dropped := <-s.ch:
				logging.Warn().
					Str("eventType", string(dropped.Type)).
					Uint64("subscriber", s.id).
					Msg("event bus: slow subscriber, dropped oldest event")
			default:
			}
			select {
			case s.ch <- e:
			default:
			}
		}
	}
	b.mirror(e)
}

// mirror forwards the event onto the watermill channel. Failures are
// ignored: the channel is an auxiliary tap, not the delivery path.
func (b *Bus) mirror(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	_ = b.pubsub.Publish(Topic, msg)
}

// PubSub exposes the watermill channel for middleware or routing.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cur := *b.subs.Load()
	empty := []*subscriber{}
	b.subs.Store(&empty)
	b.mu.Unlock()

	for _, s := range cur {
		close(s.ch)
	}
	return b.pubsub.Close()
}
