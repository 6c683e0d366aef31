// Package events provides a simple publish-subscribe bus for notifications
// (SSE delivery, metrics, logging).
package events

import (
	"sync"
	"time"

	"github.com/micro-nova/flick-go/internal/models"
)

const subBufferSize = 16

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan models.Notification
	now  func() time.Time
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan models.Notification),
		now:  time.Now,
	}
}

// Subscribe creates a new subscription with the given ID.
// The returned channel will receive notifications.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan models.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan models.Notification, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends a notification to all subscribers, stamping At if unset.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus) Publish(n models.Notification) {
	if n.At.IsZero() {
		n.At = b.now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			// Drop if subscriber is slow
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

var _ models.Notifier = (*Bus)(nil)
