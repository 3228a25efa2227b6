// Package realtime fans chat events out to connected clients through named
// channels.
package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/sunilpie-kumar/kustom-backend/internal/logging"
	"github.com/sunilpie-kumar/kustom-backend/internal/metrics"
)

// ErrHubClosed is returned when publishing after Close.
var ErrHubClosed = errors.New("realtime hub closed")

// Subscriber receives events published to channels it has joined.
// Deliver must not block; a subscriber that cannot keep up should drop the
// event and return an error.
type Subscriber interface {
	ID() string
	Deliver(event string, payload any) error
}

// Hub tracks channel memberships. Channels are created on first join and
// removed when their last member leaves.
type Hub struct {
	mu          sync.RWMutex
	channels    map[string]map[string]Subscriber // channel -> subscriber id -> subscriber
	memberships map[string]map[string]struct{}   // subscriber id -> channels
	closed      bool

	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty hub. m may be nil.
func NewHub(log *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		channels:    make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
		log:         log.Sub("realtime"),
		metrics:     m,
	}
}

// Join adds s to channel. Joining twice is a no-op.
func (h *Hub) Join(channel string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	members := h.channels[channel]
	if members == nil {
		members = make(map[string]Subscriber)
		h.channels[channel] = members
	}
	members[s.ID()] = s

	joined := h.memberships[s.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		h.memberships[s.ID()] = joined
	}
	joined[channel] = struct{}{}
}

// Leave removes s from channel.
func (h *Hub) Leave(channel string, s Subscriber) {
	h.mu.Lock()
	h.leaveLocked(channel, s.ID())
	h.mu.Unlock()
}

// Detach removes s from every channel it joined.
func (h *Hub) Detach(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range h.memberships[s.ID()] {
		h.leaveLocked(channel, s.ID())
	}
	delete(h.memberships, s.ID())
}

func (h *Hub) leaveLocked(channel, id string) {
	if members := h.channels[channel]; members != nil {
		delete(members, id)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	if joined := h.memberships[id]; joined != nil {
		delete(joined, channel)
		if len(joined) == 0 {
			delete(h.memberships, id)
		}
	}
}

// Publish delivers event to every member of channel and returns the number
// of successful deliveries. Delivery failures are logged and counted, never
// returned.
func (h *Hub) Publish(channel, event string, payload any) (int, error) {
	return h.PublishExcept(channel, event, payload, "")
}

// PublishExcept is Publish skipping the subscriber with id except.
func (h *Hub) PublishExcept(channel, event string, payload any, except string) (int, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0, ErrHubClosed
	}
	members := make([]Subscriber, 0, len(h.channels[channel]))
	for id, s := range h.channels[channel] {
		if except != "" && id == except {
			continue
		}
		members = append(members, s)
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		h.metrics.RealtimeDelivery(event, "no_subscribers", 1)
		return 0, nil
	}

	delivered, dropped := 0, 0
	for _, s := range members {
		if err := s.Deliver(event, payload); err != nil {
			dropped++
			h.log.Debug().Err(err).
				Str("channel", channel).
				Str("event", event).
				Str("subscriber", s.ID()).
				Msg("delivery dropped")
			continue
		}
		delivered++
	}
	h.metrics.RealtimeDelivery(event, "delivered", delivered)
	h.metrics.RealtimeDelivery(event, "dropped", dropped)
	return delivered, nil
}

// IsMember reports whether s has joined channel.
func (h *Hub) IsMember(channel string, s Subscriber) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][s.ID()]
	return ok
}

// Members returns the number of subscribers in channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels returns the sorted channel names s has joined.
func (h *Hub) Channels(s Subscriber) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.memberships[s.ID()]))
	for channel := range h.memberships[s.ID()] {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// Stats returns the number of live channels and subscribers.
func (h *Hub) Stats() (channels, subscribers int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels), len(h.memberships)
}

// Close drops all memberships. Later joins are ignored and publishes fail
// with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.channels = make(map[string]map[string]Subscriber)
	h.memberships = make(map[string]map[string]struct{})
	h.log.Info().Msg("hub closed")
}
