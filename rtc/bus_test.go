package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	require.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(PeerJoined{UID: 7, ElapsedMs: 120})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			joined, ok := ev.(PeerJoined)
			require.True(t, ok)
			assert.Equal(t, uint32(7), joined.UID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusPreservesPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		bus.Publish(PeerJoined{UID: uint32(i)})
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-ch:
			assert.Equal(t, uint32(i), ev.(PeerJoined).UID)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestBusReplayFree(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Publish(PeerJoined{UID: 1})

	ch, cancel := bus.Subscribe()
	defer cancel()

	select {
	case ev := <-ch:
		t.Fatalf("late subscriber must not see earlier events, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeIdempotent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusOverflowDropsOldest(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// Overfill the buffer without draining; the newest event must
	// still be deliverable.
	for i := 0; i < subscriberBuffer+5; i++ {
		bus.Publish(PeerJoined{UID: uint32(i)})
	}

	var last PeerJoined
	drained := 0
	for {
		select {
		case ev := <-ch:
			last = ev.(PeerJoined)
			drained++
			continue
		default:
		}
		break
	}

	assert.Equal(t, subscriberBuffer, drained)
	assert.Equal(t, uint32(subscriberBuffer+4), last.UID, "newest event must survive overflow")
}

func TestBusCloseTerminatesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()

	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after close is a no-op.
	bus.Publish(PeerJoined{UID: 1})

	// Subscribing after close yields a closed channel.
	ch2, cancel := bus.Subscribe()
	defer cancel()
	_, open = <-ch2
	assert.False(t, open)
}
