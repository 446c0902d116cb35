package eventbus

import "sync"

type Topic string

const (
	TopicAssetAdded         Topic = "asset-added"
	TopicAssetUpdated       Topic = "asset-updated"
	TopicAssetDeleted       Topic = "asset-deleted"
	TopicPortfolioRefreshed Topic = "portfolio-refreshed"
	TopicSettingsUpdated    Topic = "settings-updated"
)

type Handler func(payload any)

type subscription struct {
	id      int
	handler Handler
}

// Bus is an in-process publish/subscribe channel. Delivery is synchronous,
// at-most-once per subscriber per publish, in subscription order. A Bus is
// constructed per owning scope and passed explicitly, never shared as a
// package singleton.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers handler for topic and returns its unsubscribe
// function. Callers must unsubscribe on teardown.
func (b *Bus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[topic]
		for i, sub := range subs {
			if sub.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every current subscriber of topic. Handlers
// run on the caller's goroutine.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}
