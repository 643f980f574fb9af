package rtc

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer is the per-subscriber channel depth. Events arrive
// at a few per second at most, so this only overflows when a consumer
// has stalled completely.
const subscriberBuffer = 64

// Bus distributes engine events to multiple independent subscribers.
//
// Delivery is replay-free: a subscriber only sees events published
// after it subscribed. Per-subscriber ordering matches publish order.
// Publish never blocks; when a subscriber's buffer is full its oldest
// pending event is dropped with a warning, since a stalled consumer
// must not back-pressure the engine callback path.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its event channel
// together with a cancel function. Cancelling is idempotent and closes
// the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	b.subs[id] = ch

	logrus.WithFields(logrus.Fields{
		"function":      "Subscribe",
		"subscriber_id": id,
	}).Debug("Event bus subscriber registered")

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Publish delivers an event to every current subscriber without
// blocking the caller.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Full buffer: drop the oldest pending event to keep the
			// newest one deliverable, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function":      "Publish",
				"subscriber_id": id,
				"event_kind":    ev.Kind(),
			}).Warn("Event bus subscriber overflowed, dropped oldest event")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close terminates the bus. All subscriber channels are closed and
// subsequent Publish calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Debug("Event bus closed")
}
