// Package hub fans out state-change notifications and anomaly alerts to
// per-zone subscribers. Delivery is best-effort: each subscriber has a
// bounded buffer and the oldest pending notification is dropped on
// overflow, so a slow live-view client can never block ingestion or the
// state manager.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
)

// NotificationType distinguishes live state updates from alerts.
type NotificationType string

const (
	TypeStateUpdate NotificationType = "state_update"
	TypeAlert       NotificationType = "alert"
)

// Notification is one message on the live channel.
type Notification struct {
	Type      NotificationType `json:"type"`
	ZoneCode  string           `json:"zone_code"`
	Payload   interface{}      `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

// DefaultBufferDepth is the per-subscriber buffer size when none is given.
const DefaultBufferDepth = 64

// Subscription is a handle to one subscriber's notification stream.
type Subscription struct {
	id      string
	zones   map[string]struct{}
	ch      chan Notification
	dropped atomic.Int64
}

// ID returns the opaque subscription identifier.
func (s *Subscription) ID() string { return s.id }

// C returns the channel notifications are delivered on. The channel is
// closed on unsubscribe.
func (s *Subscription) C() <-chan Notification { return s.ch }

// DroppedCount reports how many notifications were discarded because the
// subscriber fell behind.
func (s *Subscription) DroppedCount() int64 { return s.dropped.Load() }

// matches reports whether the subscription wants notifications for a zone.
// An empty zone set subscribes to everything.
func (s *Subscription) matches(zoneCode string) bool {
	if len(s.zones) == 0 {
		return true
	}
	_, ok := s.zones[zoneCode]
	return ok
}

// Hub routes notifications to subscribers whose zone set intersects the
// notification's zone.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*Subscription
	bufferDepth int
	closed      bool
}

// NewHub creates a hub with the given per-subscriber buffer depth.
// Non-positive depths fall back to DefaultBufferDepth.
func NewHub(bufferDepth int) *Hub {
	if bufferDepth <= 0 {
		bufferDepth = DefaultBufferDepth
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		bufferDepth: bufferDepth,
	}
}

// Subscribe registers a subscriber for the given zone codes. No zone codes
// means all zones.
func (h *Hub) Subscribe(zoneCodes ...string) *Subscription {
	zones := make(map[string]struct{}, len(zoneCodes))
	for _, code := range zoneCodes {
		zones[code] = struct{}{}
	}
	sub := &Subscription{
		id:    uuid.NewString(),
		zones: zones,
		ch:    make(chan Notification, h.bufferDepth),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// for an already-removed ID.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers a notification to every matching subscriber without
// blocking. When a subscriber's buffer is full the oldest pending
// notification is evicted to make room and counted against the subscriber.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subscribers {
		if !sub.matches(n.ZoneCode) {
			continue
		}
		select {
		case sub.ch <- n:
			continue
		default:
		}
		// Buffer full: evict the oldest, then retry once. If a concurrent
		// reader raced us for the slot the retry may still fail; the new
		// notification is then the one dropped.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- n:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close unsubscribes everyone and rejects future publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
	monitoring.Logf("hub: closed")
}
