// Package driver defines the narrow interface through which the
// orchestrator talks to the underlying WhatsApp automation client. The
// client is treated as an opaque, possibly flaky remote peer: every call
// may block for seconds and must be bounded by the caller's context.
package driver

import (
	"context"
	"time"
)

// Connection states reported by GetState.
const (
	StateConnected    = "CONNECTED"
	StateConnecting   = "CONNECTING"
	StateDisconnected = "DISCONNECTED"
)

// Delivery acknowledgment ordinals carried by AckEvent.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// Chat is a lightweight chat summary derived from the client's view.
type Chat struct {
	ID                 string
	Name               string
	LastMessagePreview string
	LastActivityAt     time.Time
	UnreadCount        int
	IsGroup            bool
}

// Message is a single chat message as seen by the client.
type Message struct {
	ID        string
	ChatID    string
	Body      string
	FromMe    bool
	IsGroup   bool
	Timestamp time.Time
}

// Event is the marker interface for all client callback events.
type Event interface {
	isDriverEvent()
}

// QREvent carries a fresh pairing code. Image is a rendered PNG of the
// code suitable for the dashboard.
type QREvent struct {
	Code  string
	Image []byte
}

// ReadyEvent signals a fully authenticated, connected session.
type ReadyEvent struct {
	PhoneNumber string
}

// MessageEvent carries one inbound or outbound message.
type MessageEvent struct {
	Message Message
}

// AckEvent carries a delivery state change for a previously sent message.
type AckEvent struct {
	MessageID string
	ChatID    string
	Code      int
}

// StateEvent carries a presence/typing change in a chat.
type StateEvent struct {
	ChatID      string
	Participant string
	State       string
}

// DisconnectedEvent signals the session dropped; a reconnect may succeed.
type DisconnectedEvent struct {
	Reason string
}

// AuthFailureEvent signals the stored credentials are no longer valid.
type AuthFailureEvent struct {
	Reason string
}

// ErrorEvent signals an unrecoverable client failure.
type ErrorEvent struct {
	Err error
}

func (QREvent) isDriverEvent()           {}
func (ReadyEvent) isDriverEvent()        {}
func (MessageEvent) isDriverEvent()      {}
func (AckEvent) isDriverEvent()          {}
func (StateEvent) isDriverEvent()        {}
func (DisconnectedEvent) isDriverEvent() {}
func (AuthFailureEvent) isDriverEvent()  {}
func (ErrorEvent) isDriverEvent()        {}

// EventHandler receives client events. Handlers must not block; the
// orchestrator serializes per-profile processing on its own goroutine.
type EventHandler func(Event)

// Client is one automation-client session. Implementations must be safe
// for concurrent use.
type Client interface {
	// Connect starts the session. If no credentials are stored yet the
	// client emits QREvents until pairing completes or times out.
	Connect(ctx context.Context) error
	// Disconnect tears the session down. Best effort; the remote side
	// may take a few seconds to release.
	Disconnect()
	// Logout discards the stored credentials in addition to disconnecting.
	Logout(ctx context.Context) error
	// GetState is a lightweight health probe.
	GetState(ctx context.Context) (string, error)
	GetChats(ctx context.Context) ([]Chat, error)
	FetchMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, chatID string, text string) (Message, error)
	IsRegisteredUser(ctx context.Context, phone string) (bool, error)
	// ProfilePictureURL returns the session's own avatar URL, if any.
	ProfilePictureURL(ctx context.Context) (string, error)
	// SetEventHandler registers the single event callback. Must be called
	// before Connect.
	SetEventHandler(h EventHandler)
}

// Factory creates clients bound to a clientID credential store.
type Factory interface {
	NewClient(ctx context.Context, clientID string) (Client, error)
}
