package orchestrator

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/pkg/metrics"
)

// Reconciler repairs drift between the persisted profile rows and the live
// registry. It only corrects and logs; a reconciliation pass never fails a
// caller's request. Repeated runs over the same state are no-ops.
type Reconciler struct {
	db       *gorm.DB
	registry *Registry
	fsm      *StateMachine
}

func NewReconciler(db *gorm.DB, registry *Registry, fsm *StateMachine) *Reconciler {
	return &Reconciler{db: db, registry: registry, fsm: fsm}
}

// ReconcileAll applies the per-profile rules to every given row, mutating
// the slice in place so listings reflect the corrected state without a
// second read.
func (r *Reconciler) ReconcileAll(profiles []domain.Profile) {
	for i := range profiles {
		r.reconcileOne(&profiles[i])
	}
}

func (r *Reconciler) reconcileOne(p *domain.Profile) {
	h := r.registry.Get(p.ID)

	// A live session cannot exist without a handle; the prior process
	// likely died mid-session.
	if h == nil && p.IsConnected {
		zap.L().Warn("reconcile: connected profile without live handle",
			zap.Int64("profile_id", p.ID))
		r.fsm.MarkDisconnected(p.ID)
		r.applyDisconnected(p)
		metrics.IncrCounter("reconcile_corrections_total", 1)
		return
	}

	// An abandoned connect attempt.
	if h == nil && p.Status == domain.ProfileConnecting {
		zap.L().Info("reconcile: abandoned connect attempt",
			zap.Int64("profile_id", p.ID))
		r.fsm.MarkDisconnected(p.ID)
		r.applyDisconnected(p)
		metrics.IncrCounter("reconcile_corrections_total", 1)
		return
	}

	// Pairing still pending while the store claims connected.
	if h != nil && h.Phase() == PhaseQRReady && p.Status == domain.ProfileConnected {
		zap.L().Info("reconcile: pairing pending, downgrading stored status",
			zap.Int64("profile_id", p.ID))
		r.fsm.MarkConnecting(p.ID)
		p.Status = domain.ProfileConnecting
		p.IsConnected = false
		metrics.IncrCounter("reconcile_corrections_total", 1)
	}
}

func (r *Reconciler) applyDisconnected(p *domain.Profile) {
	now := time.Now()
	p.Status = domain.ProfileDisconnected
	p.IsConnected = false
	p.LastDisconnectedAt = &now
}

// StartupSweep forces every row still flagged connected to disconnected.
// Sessions from a prior process cannot be trusted, so none survive a
// restart; operators reconnect explicitly.
func (r *Reconciler) StartupSweep() {
	now := time.Now()
	result := r.db.Model(&domain.Profile{}).
		Where("is_connected = ? OR status IN ?", true,
			[]string{domain.ProfileConnecting, domain.ProfileConnected}).
		Updates(map[string]interface{}{
			"status":               domain.ProfileDisconnected,
			"is_connected":         false,
			"last_disconnected_at": &now,
		})
	if result.Error != nil {
		zap.L().Error("startup sweep failed", zap.Error(result.Error))
		return
	}
	for _, h := range r.registry.SnapshotAll() {
		if removed := r.registry.Remove(h.ProfileID); removed != nil {
			removed.close()
		}
	}
	zap.L().Info("startup sweep complete",
		zap.Int64("rows_corrected", result.RowsAffected))
}
