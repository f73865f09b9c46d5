// Package hub fans live market events out to WebSocket subscribers by
// topic. Delivery is at-most-once: a slow subscriber loses messages rather
// than stalling the broadcast.
package hub

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topic builders
func TokenTopic(address string) string { return "token:" + address }
func OHLCVTopic(base, quote, tf string) string {
	return "ohlcv:" + base + ":" + quote + ":" + tf
}
func TradesTopic(base, quote string) string { return "trades:" + base + ":" + quote }

const (
	TopicPulse     = "pulse"
	TopicDashboard = "dashboard"
)

// Event is one server→client frame
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

const subscriberBuffer = 256

// Subscriber is one connected client. Send carries marshaled frames; it is
// closed by the hub on unregister.
type Subscriber struct {
	ID   string
	Send chan []byte

	mu     sync.Mutex
	topics map[string]struct{}
	closed bool
}

// NewSubscriber creates a subscriber with a fresh ID and buffered channel
func NewSubscriber() *Subscriber {
	return &Subscriber{
		ID:     uuid.NewString(),
		Send:   make(chan []byte, subscriberBuffer),
		topics: make(map[string]struct{}),
	}
}

// Topics snapshots the current subscription set
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Hub routes events to topic subscribers
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	subs   map[string]*Subscriber
	log    zerolog.Logger

	dropped uint64 // frames lost to full subscriber buffers
}

// New creates an empty hub
func New() *Hub {
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		subs:   make(map[string]*Subscriber),
		log:    zerolog.New(os.Stderr).With().Timestamp().Str("component", "hub").Logger(),
	}
}

// Register adds a subscriber to the hub
func (h *Hub) Register(sub *Subscriber) {
	h.mu.Lock()
	h.subs[sub.ID] = sub
	count := len(h.subs)
	h.mu.Unlock()
	h.log.Debug().Str("subscriber", sub.ID).Int("total", count).Msg("subscriber registered")
}

// Unregister drops a subscriber, releases its topic memberships and closes
// its send channel
func (h *Hub) Unregister(sub *Subscriber) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	topics := make([]string, 0, len(sub.topics))
	for t := range sub.topics {
		topics = append(topics, t)
	}
	sub.topics = make(map[string]struct{})
	sub.mu.Unlock()

	h.mu.Lock()
	delete(h.subs, sub.ID)
	for _, topic := range topics {
		if members, ok := h.topics[topic]; ok {
			delete(members, sub)
			if len(members) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	h.mu.Unlock()

	close(sub.Send)
	h.log.Debug().Str("subscriber", sub.ID).Msg("subscriber unregistered")
}

// Subscribe adds the subscriber to a topic
func (h *Hub) Subscribe(sub *Subscriber, topic string) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.topics[topic] = struct{}{}
	sub.mu.Unlock()

	h.mu.Lock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.topics[topic] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes the subscriber from a topic
func (h *Hub) Unsubscribe(sub *Subscriber, topic string) {
	sub.mu.Lock()
	delete(sub.topics, topic)
	sub.mu.Unlock()

	h.mu.Lock()
	if members, ok := h.topics[topic]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

// HasSubscribers reports whether anyone listens on a topic
func (h *Hub) HasSubscribers(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic]) > 0
}

// SubscriberCount returns the number of registered subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish marshals the event once and delivers it to every topic
// subscriber. Full buffers drop the frame for that subscriber only.
func (h *Hub) Publish(topic, eventType string, data interface{}) {
	h.mu.RLock()
	members := h.topics[topic]
	if len(members) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Subscriber, 0, len(members))
	for sub := range members {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("event marshal failed")
		return
	}

	for _, sub := range targets {
		// closed guard keeps the send off a channel Unregister already closed
		sub.mu.Lock()
		if !sub.closed {
			select {
			case sub.Send <- payload:
			default:
				atomic.AddUint64(&h.dropped, 1)
			}
		}
		sub.mu.Unlock()
	}
}

// Dropped returns the number of frames lost to slow subscribers
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

// Close unregisters every subscriber. Used during shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.Unregister(sub)
	}
}
