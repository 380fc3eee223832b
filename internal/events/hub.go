// Package events is the in-process notification bus between the engine's
// components and the screens observing them.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Topics published by the engine
const (
	TopicCars      = "cars"       // []models.AuctionItem, raw feed snapshot
	TopicPrice     = "price"      // PriceUpdate
	TopicStatus    = "status"     // StatusChange
	TopicActive    = "active"     // window.Snapshot after every tick
	TopicExpired   = "expired"    // models.AuctionResult
	TopicBidPlaced = "bid.placed" // models.BidEvent
)

// Event is one published message
type Event struct {
	Topic   string
	Payload any
}

// Hub fans events out to subscribers by topic
type Hub struct {
	// topic -> set of subscriptions watching that topic
	subscribers map[string]map[*Subscription]struct{}
	mu          sync.RWMutex
	closed      bool
	log         *slog.Logger
}

// Subscription is a registered listener. Events arrive on C until
// Unsubscribe is called or the hub is closed.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan Event

	send chan Event
	hub  *Hub
	once sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		log:         slog.With("component", "events"),
	}
}

// Subscribe registers a listener for topic with the given channel buffer
func (h *Hub) Subscribe(topic string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{
		ID:    uuid.New().String(),
		Topic: topic,
		C:     ch,
		send:  ch,
		hub:   h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	set, ok := h.subscribers[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subscribers[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscription and closes its channel
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subscribers[s.Topic]; ok {
			if _, registered := set[s]; registered {
				delete(set, s)
				close(s.send)
			}
			if len(set) == 0 {
				delete(h.subscribers, s.Topic)
			}
		}
	})
}

// Publish delivers payload to every subscriber of topic without blocking.
// A subscriber whose buffer is full misses the event.
// Returns the number of subscribers that received it.
func (h *Hub) Publish(topic string, payload any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	ev := Event{Topic: topic, Payload: payload}
	count := 0
	for sub := range h.subscribers[topic] {
		select {
		case sub.send <- ev:
			count++
		default:
			h.log.Warn("dropping event for slow subscriber", "topic", topic, "subscriber", sub.ID)
		}
	}
	return count
}

// SubscriberCount returns the number of listeners on topic
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

// Close closes every subscription. Publishing afterwards is a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subscribers {
		for sub := range set {
			close(sub.send)
		}
		delete(h.subscribers, topic)
	}
}
