// Package realtime implements the room-based fan-out transport. Subscribers
// join a room keyed by profile id; publishers fire events into the room and
// never wait. Rooms with no subscribers silently drop events: the dashboard
// is a live view, not a message store.
package realtime

import (
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/talkincode/waconsole/pkg/metrics"
)

// Envelope event types.
const (
	EventMessage = "message"
	EventStatus  = "status"
	EventState   = "state"
)

// MessagePayload is the payload of a message envelope.
type MessagePayload struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"from_me"`
	IsGroup   bool      `json:"is_group"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusPayload is the payload of a delivery-status envelope.
type StatusPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	Delivery  string `json:"delivery"` // pending|sent|delivered|read
}

// StatePayload is the payload of a presence/typing envelope.
type StatePayload struct {
	ChatID      string `json:"chat_id"`
	Participant string `json:"participant"`
	State       string `json:"state"`
}

// Envelope is the normalized record forwarded to subscribers. Exactly one
// of Message, Status, State is non-nil, matching Type.
type Envelope struct {
	Type      string          `json:"type"`
	ProfileID int64           `json:"profile_id,string"`
	EmittedAt time.Time       `json:"emitted_at"`
	Message   *MessagePayload `json:"message,omitempty"`
	Status    *StatusPayload  `json:"status,omitempty"`
	State     *StatePayload   `json:"state,omitempty"`
}

// RoomName returns the transport room for a profile.
func RoomName(profileID int64) string {
	return fmt.Sprintf("profile-%d", profileID)
}

// Subscriber receives envelopes for one room.
type Subscriber func(env Envelope)

// Hub is an in-process room registry built on an event bus. Publishing is
// fire-and-forget: no acknowledgment, no retry, no persistence.
type Hub struct {
	bus EventBus.Bus
}

func NewHub() *Hub {
	return &Hub{bus: EventBus.New()}
}

// Publish delivers env to every subscriber of room. It never blocks the
// caller and never fails; an empty room drops the event.
func (h *Hub) Publish(room string, env Envelope) {
	if !h.bus.HasCallback(room) {
		metrics.IncrCounter("realtime_events_dropped", 1)
		return
	}
	h.bus.Publish(room, env)
	metrics.IncrCounter("realtime_events_published", 1)
}

// Subscribe registers fn for the room until Unsubscribe is called with the
// same function value.
func (h *Hub) Subscribe(room string, fn Subscriber) error {
	if err := h.bus.Subscribe(room, fn); err != nil {
		return fmt.Errorf("subscribe %s: %w", room, err)
	}
	zap.L().Debug("realtime: subscriber joined", zap.String("room", room))
	return nil
}

// Unsubscribe removes fn from the room.
func (h *Hub) Unsubscribe(room string, fn Subscriber) {
	if err := h.bus.Unsubscribe(room, fn); err != nil {
		zap.L().Debug("realtime: unsubscribe on empty room", zap.String("room", room), zap.Error(err))
	}
}

// HasSubscribers reports whether any subscriber is attached to room.
func (h *Hub) HasSubscribers(room string) bool {
	return h.bus.HasCallback(room)
}
