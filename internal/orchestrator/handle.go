// Package orchestrator manages the lifecycle of WhatsApp sessions: one live
// handle per connected profile, a state machine that owns the persisted
// connection status, retry-wrapped calls into the underlying client and a
// router that converts raw client events into room envelopes.
package orchestrator

import (
	"sync"
	"time"

	"github.com/talkincode/waconsole/internal/driver"
)

// Runtime phases of a session handle. These are finer grained than the
// persisted profile status: qr_ready only exists while a pairing code is
// on screen and is never written to the database.
const (
	PhaseConnecting   = "connecting"
	PhaseQRReady      = "qr_ready"
	PhaseConnected    = "connected"
	PhaseDisconnected = "disconnected"
	PhaseError        = "error"
)

// SessionHandle pairs a live client with its runtime state. All mutable
// fields are guarded by mu; the orchestrator shares handles between the
// HTTP layer and the event goroutine.
type SessionHandle struct {
	ProfileID int64
	ClientID  string
	Client    driver.Client

	mu          sync.RWMutex
	phase       string
	qrCode      string
	qrImage     []byte
	qrIssuedAt  time.Time
	phoneNumber string
	lastError   string
	events      chan driver.Event
	done        chan struct{}
	closeOnce   sync.Once
}

// event queue depth per handle; the router drains quickly so this only
// buffers bursts around reconnects.
const handleEventBuffer = 256

func newSessionHandle(profileID int64, clientID string, client driver.Client) *SessionHandle {
	return &SessionHandle{
		ProfileID: profileID,
		ClientID:  clientID,
		Client:    client,
		phase:     PhaseConnecting,
		events:    make(chan driver.Event, handleEventBuffer),
		done:      make(chan struct{}),
	}
}

// Phase returns the current runtime phase.
func (h *SessionHandle) Phase() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.phase
}

func (h *SessionHandle) setPhase(phase string) {
	h.mu.Lock()
	h.phase = phase
	if phase != PhaseQRReady {
		h.qrCode = ""
		h.qrImage = nil
	}
	h.mu.Unlock()
}

func (h *SessionHandle) setQR(code string, image []byte) {
	h.mu.Lock()
	h.phase = PhaseQRReady
	h.qrCode = code
	h.qrImage = image
	h.qrIssuedAt = time.Now()
	h.mu.Unlock()
}

// QR returns the pending pairing code and PNG, or empty values when no
// pairing is in progress.
func (h *SessionHandle) QR() (code string, image []byte, issuedAt time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.qrCode, h.qrImage, h.qrIssuedAt
}

func (h *SessionHandle) setPhoneNumber(number string) {
	h.mu.Lock()
	h.phoneNumber = number
	h.mu.Unlock()
}

// PhoneNumber returns the number observed at the last successful pairing,
// empty until the session has been ready at least once.
func (h *SessionHandle) PhoneNumber() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.phoneNumber
}

func (h *SessionHandle) setLastError(msg string) {
	h.mu.Lock()
	h.lastError = msg
	h.mu.Unlock()
}

// LastError returns the most recent failure message, empty when healthy.
func (h *SessionHandle) LastError() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastError
}

// enqueue pushes a client event onto the handle's ordered queue. Events
// arriving after close, or beyond the buffer, are dropped.
func (h *SessionHandle) enqueue(ev driver.Event) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

// close stops the event queue. Safe to call more than once.
func (h *SessionHandle) close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}
