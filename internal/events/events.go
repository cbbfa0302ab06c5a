// Package events provides in-process pub/sub for domain events. The audit
// trail subscribes to everything; other consumers pick single types.
package events

import (
	"sync"
	"time"
)

// Type names a domain event.
type Type string

const (
	SubscriptionCreated Type = "subscription.created"
	SubscriptionUpdated Type = "subscription.updated"
	SubscriptionDeleted Type = "subscription.deleted"
	SettingsUpdated     Type = "settings.updated"
	APIKeyCreated       Type = "apikey.created"
	APIKeyRevoked       Type = "apikey.revoked"
	UserBlocked         Type = "user.blocked"
	UserUnblocked       Type = "user.unblocked"
	SyncCompleted       Type = "sync.completed"
)

// Event is one domain occurrence tied to a user.
type Event struct {
	Type           Type
	UserID         int64
	SubscriptionID int64
	Detail         string
	CreatedAt      time.Time
}

// Handler reacts to an event. Handlers run synchronously on the publishing
// goroutine and must not block.
type Handler func(event Event)

// Bus provides in-process pub/sub.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]Handler
	catchAll    []Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catchAll = append(b.catchAll, handler)
}

// Publish notifies subscribers of the event type, then catch-all handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.catchAll...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		handler(event)
	}
}
