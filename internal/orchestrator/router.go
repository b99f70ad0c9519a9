package orchestrator

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/talkincode/waconsole/internal/driver"
	"github.com/talkincode/waconsole/internal/realtime"
	"github.com/talkincode/waconsole/pkg/metrics"
)

// Delivery labels published in status envelopes.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
)

// recently-seen ids kept per profile; large enough to cover the replay
// window the client produces on reconnect.
const dedupWindow = 512

// Router turns raw client events into typed envelopes on the profile's
// room. Lifecycle events never reach subscribers; they drive the state
// machine instead.
type Router struct {
	hub  *realtime.Hub
	fsm  *StateMachine
	pool *ants.Pool

	mu   sync.Mutex
	seen map[int64]*lru.Cache[string, struct{}]
}

func NewRouter(hub *realtime.Hub, fsm *StateMachine, pool *ants.Pool) *Router {
	return &Router{
		hub:  hub,
		fsm:  fsm,
		pool: pool,
		seen: make(map[int64]*lru.Cache[string, struct{}]),
	}
}

// Serve consumes the handle's event queue until the handle closes. One
// goroutine per handle keeps per-profile ordering; fan-out across profiles
// stays concurrent.
func (r *Router) Serve(h *SessionHandle) {
	for {
		select {
		case <-h.done:
			r.drain(h)
			return
		case ev := <-h.events:
			r.route(h, ev)
		}
	}
}

// drain routes whatever was queued before the handle closed. Teardown
// enqueues a final failure event right before closing, and that one must
// still reach the state machine.
func (r *Router) drain(h *SessionHandle) {
	for {
		select {
		case ev := <-h.events:
			r.route(h, ev)
		default:
			return
		}
	}
}

func (r *Router) route(h *SessionHandle, ev driver.Event) {
	switch e := ev.(type) {
	case *driver.MessageEvent:
		if r.duplicate(h.ProfileID, e.Message.ID) {
			metrics.IncrCounter("router_duplicates_dropped", 1)
			return
		}
		r.publish(h.ProfileID, realtime.Envelope{
			Type:      realtime.EventMessage,
			ProfileID: h.ProfileID,
			EmittedAt: time.Now(),
			Message: &realtime.MessagePayload{
				MessageID: e.Message.ID,
				ChatID:    e.Message.ChatID,
				Body:      e.Message.Body,
				FromMe:    e.Message.FromMe,
				IsGroup:   e.Message.IsGroup,
				Timestamp: e.Message.Timestamp,
			},
		})

	case *driver.AckEvent:
		r.publish(h.ProfileID, realtime.Envelope{
			Type:      realtime.EventStatus,
			ProfileID: h.ProfileID,
			EmittedAt: time.Now(),
			Status: &realtime.StatusPayload{
				MessageID: e.MessageID,
				ChatID:    e.ChatID,
				Delivery:  DeliveryLabel(e.Code),
			},
		})

	case *driver.StateEvent:
		r.publish(h.ProfileID, realtime.Envelope{
			Type:      realtime.EventState,
			ProfileID: h.ProfileID,
			EmittedAt: time.Now(),
			State: &realtime.StatePayload{
				ChatID:      e.ChatID,
				Participant: e.Participant,
				State:       e.State,
			},
		})

	default:
		// qr, ready, disconnected, auth failure, error
		r.fsm.Apply(h, ev)
	}
}

// DeliveryLabel maps a client acknowledgment ordinal to its wire label.
// Unknown ordinals read as pending.
func DeliveryLabel(code int) string {
	switch code {
	case driver.AckSent:
		return DeliverySent
	case driver.AckDelivered:
		return DeliveryDelivered
	case driver.AckRead:
		return DeliveryRead
	default:
		return DeliveryPending
	}
}

// duplicate records the id and reports whether it was already seen for the
// profile. Empty ids are never deduplicated.
func (r *Router) duplicate(profileID int64, messageID string) bool {
	if messageID == "" {
		return false
	}
	r.mu.Lock()
	cache, ok := r.seen[profileID]
	if !ok {
		cache, _ = lru.New[string, struct{}](dedupWindow)
		r.seen[profileID] = cache
	}
	r.mu.Unlock()
	_, dup := cache.Get(messageID)
	if !dup {
		cache.Add(messageID, struct{}{})
	}
	return dup
}

// forget drops the profile's dedup window, used when a profile is deleted.
func (r *Router) forget(profileID int64) {
	r.mu.Lock()
	delete(r.seen, profileID)
	r.mu.Unlock()
}

func (r *Router) publish(profileID int64, env realtime.Envelope) {
	room := realtime.RoomName(profileID)
	task := func() {
		r.hub.Publish(room, env)
	}
	if err := r.pool.Submit(task); err != nil {
		// pool saturated or closed, deliver inline rather than drop
		zap.L().Debug("router pool submit failed", zap.Error(err))
		task()
	}
	metrics.IncrCounter("router_events_routed", 1)
}
