package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/driver"
)

func TestReadyTransitionPersistsConnected(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)

	p := seedProfile(t, db, domain.ProfileConnecting, false)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	require.NoError(t, registry.Register(h))

	fsm.Apply(h, &driver.ReadyEvent{PhoneNumber: "628123456789"})

	assert.Equal(t, PhaseConnected, h.Phase())
	assert.Equal(t, "628123456789", h.PhoneNumber())

	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileConnected, row.Status)
	assert.True(t, row.IsConnected)
	assert.Equal(t, "628123456789", row.PhoneNumber)
	assert.NotNil(t, row.LastConnectedAt)
}

func TestQRTransitionStaysTransient(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)

	p := seedProfile(t, db, domain.ProfileConnecting, false)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	require.NoError(t, registry.Register(h))

	fsm.Apply(h, &driver.QREvent{Code: "pair-me", Image: []byte{0x89}})

	assert.Equal(t, PhaseQRReady, h.Phase())
	code, image, _ := h.QR()
	assert.Equal(t, "pair-me", code)
	assert.NotEmpty(t, image)

	// pairing sub-state is never written to the store
	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileConnecting, row.Status)
	assert.False(t, row.IsConnected)
}

func TestDisconnectTearsDownHandle(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)

	p := seedProfile(t, db, domain.ProfileConnecting, false)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	require.NoError(t, registry.Register(h))
	fsm.Apply(h, &driver.ReadyEvent{PhoneNumber: "628"})

	fsm.Apply(h, &driver.DisconnectedEvent{Reason: "stream closed"})

	assert.Equal(t, PhaseDisconnected, h.Phase())
	assert.Nil(t, registry.Get(p.ID))

	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileDisconnected, row.Status)
	assert.False(t, row.IsConnected)
	assert.NotNil(t, row.LastDisconnectedAt)
}

func TestAuthFailureEntersErrorState(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)

	p := seedProfile(t, db, domain.ProfileConnecting, false)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	require.NoError(t, registry.Register(h))

	fsm.Apply(h, &driver.AuthFailureEvent{Reason: "device unlinked"})

	assert.Equal(t, PhaseError, h.Phase())
	assert.Equal(t, "device unlinked", h.LastError())
	assert.Nil(t, registry.Get(p.ID))

	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileError, row.Status)
	assert.False(t, row.IsConnected)
}

// Events outside the transition table are ignored without a store write.
func TestUnlistedPairsAreNoOps(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)

	p := seedProfile(t, db, domain.ProfileConnected, true)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	h.setPhase(PhaseConnected)
	require.NoError(t, registry.Register(h))

	// a QR for an already connected session is stale noise
	fsm.Apply(h, &driver.QREvent{Code: "stale"})
	assert.Equal(t, PhaseConnected, h.Phase())
	code, _, _ := h.QR()
	assert.Empty(t, code)

	// a late ready is equally stale
	h.setPhase(PhaseDisconnected)
	fsm.Apply(h, &driver.ReadyEvent{PhoneNumber: "999"})
	assert.Equal(t, PhaseDisconnected, h.Phase())

	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileConnected, row.Status)
	assert.True(t, row.IsConnected)
	assert.Empty(t, row.PhoneNumber)
}

func TestReadyClearsPendingQR(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)

	p := seedProfile(t, db, domain.ProfileConnecting, false)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	require.NoError(t, registry.Register(h))

	fsm.Apply(h, &driver.QREvent{Code: "pair-me"})
	fsm.Apply(h, &driver.ReadyEvent{PhoneNumber: "628"})

	code, image, _ := h.QR()
	assert.Empty(t, code)
	assert.Nil(t, image)
}
