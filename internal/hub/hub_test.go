package hub

import (
	"sync"
	"testing"
	"time"

	"energy-trading-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SendToUser(t *testing.T) {
	h := NewHub(zerolog.Nop())
	userID := uuid.New()
	otherID := uuid.New()

	sub := h.Register(userID)
	other := h.Register(otherID)
	defer h.Unregister(sub)
	defer h.Unregister(other)

	h.SendToUser(userID, domain.NewPing())

	select {
	case evt := <-sub.Events():
		assert.Equal(t, domain.EventPing, evt.EventType())
	default:
		t.Fatal("expected event for target user")
	}

	select {
	case <-other.Events():
		t.Fatal("event leaked to unrelated user")
	default:
	}
}

func TestHub_SendToUser_MultipleConnections(t *testing.T) {
	h := NewHub(zerolog.Nop())
	userID := uuid.New()

	// Same user connected twice (two tabs).
	sub1 := h.Register(userID)
	sub2 := h.Register(userID)
	defer h.Unregister(sub1)
	defer h.Unregister(sub2)

	h.SendToUser(userID, domain.NewPong())

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, domain.EventPong, evt.EventType())
		default:
			t.Fatal("every connection of the user should receive the event")
		}
	}
}

func TestHub_SendToUser_NoSubscribers(t *testing.T) {
	h := NewHub(zerolog.Nop())
	// Must not panic or block.
	h.SendToUser(uuid.New(), domain.NewPing())
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub(zerolog.Nop())

	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = h.Register(uuid.New())
	}

	h.Broadcast(domain.NewEpochTransition(6, 7, nil, "0"))

	for _, sub := range subs {
		select {
		case evt := <-sub.Events():
			assert.Equal(t, domain.EventEpochTransition, evt.EventType())
		default:
			t.Fatal("broadcast should reach all subscriptions")
		}
		h.Unregister(sub)
	}
}

func TestHub_Unregister_ClosesChannel(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Register(uuid.New())

	h.Unregister(sub)

	_, open := <-sub.Events()
	assert.False(t, open, "channel should be closed after unregister")
	assert.Zero(t, h.ConnectionCount())
}

func TestHub_Unregister_Idempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Register(uuid.New())

	h.Unregister(sub)
	h.Unregister(sub) // second call must not panic on double close
}

func TestHub_SlowConsumerEvicted(t *testing.T) {
	h := NewHub(zerolog.Nop())
	userID := uuid.New()
	h.Register(userID)

	// Nobody drains the channel: fill the buffer, then overflow it.
	for i := 0; i < subscriptionBuffer; i++ {
		h.SendToUser(userID, domain.NewPing())
	}
	require.Equal(t, 1, h.ConnectionCount())

	h.SendToUser(userID, domain.NewPing())
	assert.Zero(t, h.ConnectionCount(), "overflowing subscription should be evicted")
}

func TestHub_OrderingPerSubscription(t *testing.T) {
	h := NewHub(zerolog.Nop())
	userID := uuid.New()
	sub := h.Register(userID)
	defer h.Unregister(sub)

	h.SendToUser(userID, domain.NewEpochTransition(0, 1, nil, "0"))
	h.SendToUser(userID, domain.NewEpochTransition(1, 2, nil, "0"))
	h.SendToUser(userID, domain.NewEpochTransition(2, 3, nil, "0"))

	for want := int32(1); want <= 3; want++ {
		evt := <-sub.Events()
		transition, ok := evt.(domain.EpochTransitionEvent)
		require.True(t, ok)
		assert.Equal(t, want, transition.NewEpoch)
	}
}

func TestHub_ConcurrentPublishAndChurn(t *testing.T) {
	h := NewHub(zerolog.Nop())
	userID := uuid.New()

	subs := make([]*Subscription, 10)
	for i := range subs {
		subs[i] = h.Register(userID)
	}

	var readers, writers sync.WaitGroup
	for _, sub := range subs {
		readers.Add(1)
		go func(s *Subscription) {
			defer readers.Done()
			for range s.Events() {
			}
		}(sub)
	}
	for i := 0; i < 10; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for j := 0; j < 50; j++ {
				h.SendToUser(userID, domain.NewPing())
				h.Broadcast(domain.NewPong())
			}
		}()
	}

	writers.Wait()
	for _, sub := range subs {
		h.Unregister(sub)
	}
	readers.Wait()
}

// Subscriptions come and go while publishers fan out to the same user. A
// send must never land on a channel that Unregister already closed.
func TestHub_ChurnDuringFanout(t *testing.T) {
	h := NewHub(zerolog.Nop())
	userID := uuid.New()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				h.SendToUser(userID, domain.NewPing())
				h.Broadcast(domain.NewPong())
			}
		}()
	}

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				sub := h.Register(userID)
				h.Unregister(sub)
			}
		}()
	}

	time.Sleep(500 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Zero(t, h.ConnectionCount())
}
