// Package broadcast carries the "something changed" signal between
// concurrently open sessions of the same user. Delivery is best effort and
// unordered; the durable timestamp and the heartbeat resync bound the
// damage of any dropped message.
package broadcast

import (
	"context"
	"sync"
	"time"
)

const TypeContentUpdated = "content_updated"

// Message is the cross-session change notification.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
}

// Bus is the publish/subscribe primitive connecting sessions. Publish must
// never block on slow subscribers.
type Bus interface {
	Publish(msg Message)
	// Subscribe returns a receive channel and a cancel function. After
	// cancel returns no further messages are delivered and the channel is
	// closed.
	Subscribe() (<-chan Message, func())
}

// DurableStore persists the last broadcast timestamp per user so a session
// opened after the message was sent can still detect that it is stale.
type DurableStore interface {
	SetLastBroadcast(ctx context.Context, userID int64, ts time.Time) error
	LastBroadcast(ctx context.Context, userID int64) (time.Time, error)
}

// ProcessBus is an in-process Bus fanning every message out to all
// subscribers. A subscriber that has fallen behind its buffer loses the
// message rather than stalling the publisher.
type ProcessBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Message
	closed bool
}

func NewProcessBus() *ProcessBus {
	return &ProcessBus{subs: make(map[int]chan Message)}
}

func (b *ProcessBus) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *ProcessBus) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, 16)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close drops all subscribers. Further publishes are no-ops.
func (b *ProcessBus) Close() {
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
}

// MemoryDurableStore is a DurableStore for tests and the in-memory
// configuration path.
type MemoryDurableStore struct {
	mu   sync.RWMutex
	last map[int64]time.Time
}

func NewMemoryDurableStore() *MemoryDurableStore {
	return &MemoryDurableStore{last: make(map[int64]time.Time)}
}

func (s *MemoryDurableStore) SetLastBroadcast(ctx context.Context, userID int64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[userID] = ts
	return nil
}

func (s *MemoryDurableStore) LastBroadcast(ctx context.Context, userID int64) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last[userID], nil
}
