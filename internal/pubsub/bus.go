// Package pubsub provides the in-process event bus connecting the sync
// pipeline to its subscribers. Delivery is exactly-once per
// subscription: there is a single local transport and no cross-process
// echo, so subscribers never need to deduplicate events themselves.
package pubsub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kupukupu/syncd/pkg/logger"
)

const subscriptionBuffer = 64

// Event is a single published message.
type Event struct {
	ID      string      `json:"id"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Subscription receives events for a set of topics. Events arrive on C
// until Unsubscribe or Close, after which C is closed.
type Subscription struct {
	ID     string
	C      <-chan Event
	topics map[string]bool
	ch     chan Event
}

// Matches reports whether the subscription wants the topic. An empty
// topic set subscribes to everything.
func (s *Subscription) Matches(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[topic]
}

// Bus is a topic-based publish/subscribe channel. Publishing never
// blocks: a subscriber that cannot keep up has events dropped rather
// than stalling the pipeline.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	logger *logger.Logger
}

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]*Subscription),
		logger: log.WithComponent("pubsub"),
	}
}

// Subscribe registers interest in the given topics. With no topics the
// subscription receives every event.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}

	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{
		ID:     uuid.New().String(),
		C:      ch,
		topics: topicSet,
		ch:     ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscription.
func (b *Bus) Publish(topic string, payload interface{}) {
	event := Event{
		ID:      uuid.New().String(),
		Topic:   topic,
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.Matches(topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"topic", topic,
				"subscription_id", sub.ID,
			)
		}
	}
}

// Close shuts down the bus and closes all subscription channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
