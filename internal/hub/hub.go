package hub

import (
	"sync"

	"energy-trading-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriptionBuffer is the per-connection event backlog. A consumer that
// falls this far behind is evicted rather than allowed to block publishers.
const subscriptionBuffer = 64

// Subscription is one connected client's event stream. A user may hold
// several subscriptions at once (multiple tabs, devices).
type Subscription struct {
	UserID uuid.UUID
	ch     chan domain.Event
	once   sync.Once
}

// Events returns the channel the connection's write loop drains. It is
// closed when the subscription is unregistered.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub fans events out to connected websocket clients. Publishing never
// blocks: a subscription whose buffer is full gets dropped.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
	log  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[*Subscription]struct{}),
		log:  log,
	}
}

// Register adds a subscription for the user and returns it.
func (h *Hub) Register(userID uuid.UUID) *Subscription {
	sub := &Subscription{
		UserID: userID,
		ch:     make(chan domain.Event, subscriptionBuffer),
	}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Str("user_id", userID.String()).Msg("hub subscription registered")
	return sub
}

// Unregister removes a subscription and closes its channel. Safe to call
// more than once. The close happens under the write lock so it can never
// race a send: all sends hold at least the read lock.
func (h *Hub) Unregister(sub *Subscription) {
	h.mu.Lock()
	if userSubs, ok := h.subs[sub.UserID]; ok {
		delete(userSubs, sub)
		if len(userSubs) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	sub.close()
	h.mu.Unlock()
}

// SendToUser delivers an event to every subscription the user holds.
func (h *Hub) SendToUser(userID uuid.UUID, event domain.Event) {
	h.mu.RLock()
	full := h.dispatchLocked(h.subs[userID], event)
	h.mu.RUnlock()

	h.evict(full, event)
}

// Broadcast delivers an event to every connected subscription.
func (h *Hub) Broadcast(event domain.Event) {
	h.mu.RLock()
	var full []*Subscription
	for _, userSubs := range h.subs {
		full = append(full, h.dispatchLocked(userSubs, event)...)
	}
	h.mu.RUnlock()

	h.evict(full, event)
}

// ConnectionCount reports how many subscriptions are currently registered.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, userSubs := range h.subs {
		n += len(userSubs)
	}
	return n
}

// dispatchLocked pushes the event to each target without blocking. Callers
// must hold h.mu (read side is enough): the buffered send is a short critical
// section and holding the lock keeps it mutually exclusive with the channel
// close in Unregister. Subscriptions whose buffers are full are returned for
// eviction after the lock is released.
func (h *Hub) dispatchLocked(targets map[*Subscription]struct{}, event domain.Event) []*Subscription {
	var full []*Subscription
	for sub := range targets {
		select {
		case sub.ch <- event:
		default:
			full = append(full, sub)
		}
	}
	return full
}

// evict drops subscriptions that cannot keep up so one slow reader never
// stalls settlement fan-out.
func (h *Hub) evict(subs []*Subscription, event domain.Event) {
	for _, sub := range subs {
		h.log.Warn().
			Str("user_id", sub.UserID.String()).
			Str("event_type", string(event.EventType())).
			Msg("subscription buffer full, evicting connection")
		h.Unregister(sub)
	}
}
