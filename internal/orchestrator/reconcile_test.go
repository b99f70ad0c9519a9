package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkincode/waconsole/internal/domain"
)

func TestReconcileOrphanedConnectedRow(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	rec := NewReconciler(db, registry, fsm)

	p := seedProfile(t, db, domain.ProfileConnected, true)

	profiles := []domain.Profile{*p}
	rec.ReconcileAll(profiles)

	// the listing copy is corrected in place
	assert.Equal(t, domain.ProfileDisconnected, profiles[0].Status)
	assert.False(t, profiles[0].IsConnected)

	// and the store agrees
	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileDisconnected, row.Status)
	assert.False(t, row.IsConnected)
}

func TestReconcileAbandonedConnectAttempt(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	rec := NewReconciler(db, registry, fsm)

	p := seedProfile(t, db, domain.ProfileConnecting, false)

	profiles := []domain.Profile{*p}
	rec.ReconcileAll(profiles)

	assert.Equal(t, domain.ProfileDisconnected, profiles[0].Status)
	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileDisconnected, row.Status)
}

func TestReconcileDowngradesConnectedDuringPairing(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	rec := NewReconciler(db, registry, fsm)

	p := seedProfile(t, db, domain.ProfileConnected, true)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	h.setQR("pending", nil)
	require.NoError(t, registry.Register(h))

	profiles := []domain.Profile{*p}
	rec.ReconcileAll(profiles)

	assert.Equal(t, domain.ProfileConnecting, profiles[0].Status)
	assert.False(t, profiles[0].IsConnected)
	row := reloadProfile(t, db, p.ID)
	assert.Equal(t, domain.ProfileConnecting, row.Status)
}

func TestReconcileLeavesHealthyRowsAlone(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	rec := NewReconciler(db, registry, fsm)

	p := seedProfile(t, db, domain.ProfileConnected, true)
	h := newSessionHandle(p.ID, p.ClientID, newFakeClient())
	h.setPhase(PhaseConnected)
	require.NoError(t, registry.Register(h))

	profiles := []domain.Profile{*p}
	rec.ReconcileAll(profiles)

	assert.Equal(t, domain.ProfileConnected, profiles[0].Status)
	assert.True(t, profiles[0].IsConnected)
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	rec := NewReconciler(db, registry, fsm)

	p := seedProfile(t, db, domain.ProfileConnected, true)

	profiles := []domain.Profile{*p}
	rec.ReconcileAll(profiles)
	first := reloadProfile(t, db, p.ID)

	rec.ReconcileAll(profiles)
	second := reloadProfile(t, db, p.ID)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.IsConnected, second.IsConnected)
}

func TestStartupSweepForcesDisconnected(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	rec := NewReconciler(db, registry, fsm)

	connected := seedProfile(t, db, domain.ProfileConnected, true)
	connecting := seedProfile(t, db, domain.ProfileConnecting, false)
	idle := seedProfile(t, db, domain.ProfileDisconnected, false)
	failed := seedProfile(t, db, domain.ProfileError, false)

	h := newSessionHandle(connected.ID, connected.ClientID, newFakeClient())
	require.NoError(t, registry.Register(h))

	rec.StartupSweep()

	assert.Equal(t, domain.ProfileDisconnected, reloadProfile(t, db, connected.ID).Status)
	assert.Equal(t, domain.ProfileDisconnected, reloadProfile(t, db, connecting.ID).Status)
	assert.Equal(t, domain.ProfileDisconnected, reloadProfile(t, db, idle.ID).Status)
	// error rows are left for the operator to inspect
	assert.Equal(t, domain.ProfileError, reloadProfile(t, db, failed.ID).Status)

	assert.Equal(t, 0, registry.Len(), "sweep must clear the registry")
}
