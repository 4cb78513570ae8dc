package events

import (
	"context"
	"sync"
	"time"
)

// Event is published on every successful locker state change and on
// hardware failures. Delivery is at-most-once, best-effort; it is not
// transactional with the ledger write.
type Event struct {
	Action          string    `json:"action"` // "unlock", "lock" or "hardware_failure"
	LockerID        int64     `json:"lockerId"`
	UserID          string    `json:"userId,omitempty"`
	TransactionID   string    `json:"transactionId"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
	Detail          string    `json:"detail,omitempty"`
}

// Publisher fans an event out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus is an in-process Publisher that also supports subscription, used by
// the notification worker and by tests.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewBus returns a new in-process event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every event published after the
// call. A slow subscriber drops events rather than blocking publishers.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to all current subscribers without blocking.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Multi fans one Publish out to several publishers, logging nothing and
// returning the first error; callers treat publish errors as best-effort.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
