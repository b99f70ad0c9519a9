package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/driver"
	"github.com/talkincode/waconsole/pkg/metrics"
)

// StateMachine owns every write to the persisted status and isConnected
// columns. Lifecycle events from the driver and operator commands both flow
// through here so the store can never disagree with itself about who last
// changed a profile's state.
type StateMachine struct {
	db       *gorm.DB
	registry *Registry
}

func NewStateMachine(db *gorm.DB, registry *Registry) *StateMachine {
	return &StateMachine{db: db, registry: registry}
}

// MarkConnecting records the start of a connection attempt.
func (m *StateMachine) MarkConnecting(profileID int64) {
	m.persist(profileID, map[string]interface{}{
		"status":       domain.ProfileConnecting,
		"is_connected": false,
	})
}

// MarkDisconnected records an operator-initiated or driver-reported
// disconnection.
func (m *StateMachine) MarkDisconnected(profileID int64) {
	now := time.Now()
	m.persist(profileID, map[string]interface{}{
		"status":               domain.ProfileDisconnected,
		"is_connected":         false,
		"last_disconnected_at": &now,
	})
}

// MarkError records a terminal failure; recovery requires an explicit
// reconnect from the operator.
func (m *StateMachine) MarkError(profileID int64) {
	now := time.Now()
	m.persist(profileID, map[string]interface{}{
		"status":               domain.ProfileError,
		"is_connected":         false,
		"last_disconnected_at": &now,
	})
}

// Apply advances the session for one lifecycle event. Pairs of (phase, event)
// outside the transition table are ignored without touching the store; the
// driver replays stale callbacks around reconnects and those must not rewind
// a newer state.
func (m *StateMachine) Apply(h *SessionHandle, ev driver.Event) {
	phase := h.Phase()
	switch e := ev.(type) {
	case *driver.QREvent:
		if phase != PhaseConnecting && phase != PhaseQRReady {
			return
		}
		h.setQR(e.Code, e.Image)
		zap.L().Info("session pairing code issued",
			zap.Int64("profile_id", h.ProfileID))

	case *driver.ReadyEvent:
		if phase != PhaseConnecting && phase != PhaseQRReady {
			return
		}
		h.setPhase(PhaseConnected)
		h.setLastError("")
		if e.PhoneNumber != "" {
			h.setPhoneNumber(e.PhoneNumber)
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":            domain.ProfileConnected,
			"is_connected":      true,
			"last_connected_at": &now,
		}
		if e.PhoneNumber != "" {
			updates["phone_number"] = e.PhoneNumber
		}
		if url := m.fetchAvatar(h); url != "" {
			updates["avatar_url"] = url
		}
		m.persist(h.ProfileID, updates)
		metrics.IncrCounter("session_ready_total", 1)
		zap.L().Info("session ready",
			zap.Int64("profile_id", h.ProfileID),
			zap.String("phone_number", e.PhoneNumber))

	case *driver.DisconnectedEvent:
		if phase != PhaseConnecting && phase != PhaseQRReady && phase != PhaseConnected {
			return
		}
		h.setPhase(PhaseDisconnected)
		if e.Reason != "" {
			h.setLastError(e.Reason)
		}
		m.MarkDisconnected(h.ProfileID)
		m.teardown(h)
		metrics.IncrCounter("session_disconnected_total", 1)
		zap.L().Info("session disconnected",
			zap.Int64("profile_id", h.ProfileID),
			zap.String("reason", e.Reason))

	case *driver.AuthFailureEvent:
		h.setPhase(PhaseError)
		h.setLastError(e.Reason)
		m.MarkError(h.ProfileID)
		m.teardown(h)
		metrics.IncrCounter("session_auth_failure_total", 1)
		zap.L().Warn("session authentication failed",
			zap.Int64("profile_id", h.ProfileID),
			zap.String("reason", e.Reason))

	case *driver.ErrorEvent:
		if phase == PhaseError {
			return
		}
		h.setPhase(PhaseError)
		h.setLastError(e.Err.Error())
		m.MarkError(h.ProfileID)
		zap.L().Warn("session error",
			zap.Int64("profile_id", h.ProfileID),
			zap.Error(e.Err))
	}
}

// teardown removes the handle from the registry and releases the driver
// client. The client disconnect may block on network teardown so it runs
// detached.
func (m *StateMachine) teardown(h *SessionHandle) {
	if removed := m.registry.Remove(h.ProfileID); removed != nil {
		removed.close()
		go removed.Client.Disconnect()
	}
}

// fetchAvatar asks the driver for the account photo. Purely cosmetic, a
// failure only logs.
func (m *StateMachine) fetchAvatar(h *SessionHandle) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url, err := h.Client.ProfilePictureURL(ctx)
	if err != nil {
		zap.L().Debug("profile photo fetch failed",
			zap.Int64("profile_id", h.ProfileID), zap.Error(err))
		return ""
	}
	return url
}

func (m *StateMachine) persist(profileID int64, updates map[string]interface{}) {
	err := m.db.Model(&domain.Profile{}).
		Where("id = ?", profileID).
		Updates(updates).Error
	if err != nil {
		zap.L().Error("profile status update failed",
			zap.Int64("profile_id", profileID), zap.Error(err))
	}
}
