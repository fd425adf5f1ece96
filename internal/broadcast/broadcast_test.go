package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewProcessBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	msg := Message{Type: TypeContentUpdated, Timestamp: time.Now(), UserID: 7}
	bus.Publish(msg)

	select {
	case got := <-ch1:
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive the message")
	}
	select {
	case got := <-ch2:
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive the message")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewProcessBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	bus.Publish(Message{Type: TypeContentUpdated, Timestamp: time.Now(), UserID: 1})

	_, open := <-ch
	assert.False(t, open, "channel must be closed after cancel")
}

func TestCancelIsIdempotent(t *testing.T) {
	bus := NewProcessBus()
	defer bus.Close()

	_, cancel := bus.Subscribe()
	cancel()
	cancel()
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewProcessBus()
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far beyond the subscriber buffer; delivery is best effort.
		for i := 0; i < 1000; i++ {
			bus.Publish(Message{Type: TypeContentUpdated, Timestamp: time.Now(), UserID: 1})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestCloseDropsSubscribers(t *testing.T) {
	bus := NewProcessBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()
	bus.Publish(Message{Type: TypeContentUpdated, Timestamp: time.Now(), UserID: 1})

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields a closed channel, not a hang.
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()
	_, open = <-ch2
	assert.False(t, open)
}

func TestMemoryDurableStoreRoundTrip(t *testing.T) {
	s := NewMemoryDurableStore()
	ctx := context.Background()

	ts, err := s.LastBroadcast(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ts.IsZero(), "unknown user reads as zero time")

	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastBroadcast(ctx, 5, want))

	got, err := s.LastBroadcast(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
