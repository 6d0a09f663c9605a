package core

import (
	"sync"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// AnyKind subscribes a handler to every message kind.
const AnyKind = "*"

// PushHandler receives push messages of the kind it subscribed to.
type PushHandler func(msg models.PushMessage)

// Subscription ties a handler to its consumer's lifetime.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe()
}

// EventBus routes push messages to handlers by message type.
type EventBus interface {
	Subscribe(kind string, handler PushHandler) Subscription
	// Publish delivers msg synchronously to handlers of msg.Type and to
	// AnyKind handlers, and returns how many handlers ran.
	Publish(msg models.PushMessage) int
}

type eventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]PushHandler
}

// NewEventBus creates an empty EventBus.
func NewEventBus() EventBus {
	return &eventBus{handlers: make(map[string]map[uint64]PushHandler)}
}

func (b *eventBus) Subscribe(kind string, handler PushHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]PushHandler)
	}
	b.handlers[kind][id] = handler
	return &subscription{bus: b, kind: kind, id: id}
}

func (b *eventBus) Publish(msg models.PushMessage) int {
	b.mu.RLock()
	var targets []PushHandler
	for _, h := range b.handlers[msg.Type] {
		targets = append(targets, h)
	}
	if msg.Type != AnyKind {
		for _, h := range b.handlers[AnyKind] {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	// Handlers run outside the lock so they may unsubscribe themselves.
	for _, h := range targets {
		h(msg)
	}
	return len(targets)
}

func (b *eventBus) remove(kind string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[kind]
	delete(hs, id)
	if len(hs) == 0 {
		delete(b.handlers, kind)
	}
}

type subscription struct {
	once sync.Once
	bus  *eventBus
	kind string
	id   uint64
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.kind, s.id) })
}
