package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/talkincode/waconsole/internal/domain"
	"github.com/talkincode/waconsole/internal/driver"
	"github.com/talkincode/waconsole/internal/realtime"
	"github.com/talkincode/waconsole/pkg/metrics"
)

// Facade-level sentinel errors.
var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrNotConnected     = errors.New("no live session for profile")
	ErrAlreadyConnected = errors.New("profile already has a live session")
	ErrNoPendingQR      = errors.New("no pairing code pending")
)

// lifecycle mutations for one profile are serialized on a striped lock;
// different profiles proceed in parallel.
const lockStripes = 64

// Options carries the runtime knobs, resolved from settings at startup.
type Options struct {
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	PageSize       int
	ScanDepth      int
	ContactPause   time.Duration
	PoolSize       int
}

// Orchestrator is the operator-facing facade over sessions. All lifecycle
// operations, reads and sends go through here.
type Orchestrator struct {
	db      *gorm.DB
	factory driver.Factory
	opts    Options

	registry   *Registry
	fsm        *StateMachine
	reconciler *Reconciler
	router     *Router
	sync       *SyncCoordinator
	exec       *Executor
	hub        *realtime.Hub
	pool       *ants.Pool

	locks [lockStripes]sync.Mutex
}

func New(db *gorm.DB, factory driver.Factory, hub *realtime.Hub, opts Options) (*Orchestrator, error) {
	if opts.PoolSize < 1 {
		opts.PoolSize = 64
	}
	pool, err := ants.NewPool(opts.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, errors.Wrap(err, "create fan-out pool")
	}
	registry := NewRegistry()
	fsm := NewStateMachine(db, registry)
	exec := NewExecutor(opts.MaxAttempts, opts.BaseDelay)
	o := &Orchestrator{
		db:         db,
		factory:    factory,
		opts:       opts,
		registry:   registry,
		fsm:        fsm,
		reconciler: NewReconciler(db, registry, fsm),
		router:     NewRouter(hub, fsm, pool),
		sync:       NewSyncCoordinator(exec, opts.PageSize, opts.ScanDepth),
		exec:       exec,
		hub:        hub,
		pool:       pool,
	}
	return o, nil
}

// Start runs the startup sweep. Call once before serving requests.
func (o *Orchestrator) Start() {
	o.reconciler.StartupSweep()
}

// Stop tears down every live session and the fan-out pool.
func (o *Orchestrator) Stop() {
	for _, h := range o.registry.SnapshotAll() {
		if removed := o.registry.Remove(h.ProfileID); removed != nil {
			removed.close()
			removed.Client.Disconnect()
			o.fsm.MarkDisconnected(removed.ProfileID)
		}
	}
	o.pool.Release()
}

// Hub exposes the real-time hub for the event stream endpoint.
func (o *Orchestrator) Hub() *realtime.Hub {
	return o.hub
}

// Registry exposes live handle counts for jobs and metrics.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) lock(profileID int64) *sync.Mutex {
	idx := profileID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	return &o.locks[idx]
}

func (o *Orchestrator) loadProfile(profileID int64) (*domain.Profile, error) {
	var p domain.Profile
	err := o.db.Where("id = ?", profileID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrProfileNotFound, "profile %d", profileID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load profile")
	}
	return &p, nil
}

// Connect starts a session for the profile. The call returns as soon as
// the attempt is registered; pairing and login continue in the background
// and surface through the status endpoint and lifecycle events.
func (o *Orchestrator) Connect(ctx context.Context, profileID int64) error {
	mu := o.lock(profileID)
	mu.Lock()
	defer mu.Unlock()

	p, err := o.loadProfile(profileID)
	if err != nil {
		return err
	}
	if o.registry.Get(profileID) != nil {
		return errors.Wrapf(ErrAlreadyConnected, "profile %d", profileID)
	}

	client, err := o.factory.NewClient(ctx, p.ClientID)
	if err != nil {
		o.fsm.MarkError(profileID)
		return errors.Wrap(err, "create client")
	}

	h := newSessionHandle(profileID, p.ClientID, client)
	client.SetEventHandler(func(ev driver.Event) {
		if !h.enqueue(ev) {
			metrics.IncrCounter("handle_events_dropped", 1)
		}
	})
	if err := o.registry.Register(h); err != nil {
		client.Disconnect()
		return err
	}
	o.fsm.MarkConnecting(profileID)
	go o.router.Serve(h)
	go o.runConnect(h)
	metrics.IncrCounter("session_connect_requests", 1)
	return nil
}

// runConnect drives the blocking driver connect off the request path.
func (o *Orchestrator) runConnect(h *SessionHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.ConnectTimeout)
	defer cancel()
	if err := h.Client.Connect(ctx); err != nil {
		zap.L().Warn("session connect failed",
			zap.Int64("profile_id", h.ProfileID), zap.Error(err))
		h.enqueue(&driver.ErrorEvent{Err: err})
		if removed := o.registry.Remove(h.ProfileID); removed != nil {
			removed.close()
			go removed.Client.Disconnect()
		}
	}
}

// Disconnect stops the profile's session. Disconnecting a profile without
// one is a no-op.
func (o *Orchestrator) Disconnect(ctx context.Context, profileID int64) error {
	mu := o.lock(profileID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := o.loadProfile(profileID); err != nil {
		return err
	}
	h := o.registry.Remove(profileID)
	if h != nil {
		h.close()
		h.Client.Disconnect()
	}
	o.fsm.MarkDisconnected(profileID)
	return nil
}

// Reconnect is disconnect followed by a fresh connect.
func (o *Orchestrator) Reconnect(ctx context.Context, profileID int64) error {
	if err := o.Disconnect(ctx, profileID); err != nil {
		return err
	}
	return o.Connect(ctx, profileID)
}

// Delete tears down any live session, logs the account out of the remote
// service best-effort and removes the stored profile row.
func (o *Orchestrator) Delete(ctx context.Context, profileID int64) error {
	mu := o.lock(profileID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := o.loadProfile(profileID); err != nil {
		return err
	}
	if h := o.registry.Remove(profileID); h != nil {
		h.close()
		logoutCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		if err := h.Client.Logout(logoutCtx); err != nil {
			zap.L().Warn("remote logout failed, deleting anyway",
				zap.Int64("profile_id", profileID), zap.Error(err))
		}
		cancel()
		h.Client.Disconnect()
	}
	o.router.forget(profileID)
	if err := o.db.Where("id = ?", profileID).Delete(&domain.Profile{}).Error; err != nil {
		return errors.Wrap(err, "delete profile")
	}
	zap.L().Info("profile deleted", zap.Int64("profile_id", profileID))
	return nil
}

// List returns all profiles after a reconciliation pass, so the rows shown
// always match what the registry can actually back.
func (o *Orchestrator) List(ctx context.Context) ([]domain.Profile, error) {
	var profiles []domain.Profile
	if err := o.db.Order("created_at desc").Find(&profiles).Error; err != nil {
		return nil, errors.Wrap(err, "list profiles")
	}
	o.reconciler.ReconcileAll(profiles)
	return profiles, nil
}

// StatusView merges the persisted row with the live handle's runtime phase.
type StatusView struct {
	ProfileID          int64      `json:"profile_id,string"`
	Name               string     `json:"name"`
	PhoneNumber        string     `json:"phone_number"`
	Status             string     `json:"status"`
	Phase              string     `json:"phase"`
	IsConnected        bool       `json:"is_connected"`
	QRAvailable        bool       `json:"qr_available"`
	LastError          string     `json:"last_error,omitempty"`
	AvatarURL          string     `json:"avatar_url,omitempty"`
	LastConnectedAt    *time.Time `json:"last_connected_at,omitempty"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at,omitempty"`
}

// Status reports the live view of one profile.
func (o *Orchestrator) Status(ctx context.Context, profileID int64) (*StatusView, error) {
	p, err := o.loadProfile(profileID)
	if err != nil {
		return nil, err
	}
	view := &StatusView{
		ProfileID:          p.ID,
		Name:               p.Name,
		PhoneNumber:        p.PhoneNumber,
		Status:             p.Status,
		Phase:              PhaseDisconnected,
		IsConnected:        p.IsConnected,
		AvatarURL:          p.AvatarURL,
		LastConnectedAt:    p.LastConnectedAt,
		LastDisconnectedAt: p.LastDisconnectedAt,
	}
	if h := o.registry.Get(profileID); h != nil {
		view.Phase = h.Phase()
		view.LastError = h.LastError()
		if number := h.PhoneNumber(); number != "" {
			view.PhoneNumber = number
		}
		code, _, _ := h.QR()
		view.QRAvailable = code != ""
	}
	return view, nil
}

// QR returns the pending pairing code and its PNG rendering.
func (o *Orchestrator) QR(ctx context.Context, profileID int64) (code string, image []byte, err error) {
	if _, err := o.loadProfile(profileID); err != nil {
		return "", nil, err
	}
	h := o.registry.Get(profileID)
	if h == nil {
		return "", nil, errors.Wrapf(ErrNotConnected, "profile %d", profileID)
	}
	code, image, _ = h.QR()
	if code == "" {
		return "", nil, errors.Wrapf(ErrNoPendingQR, "profile %d", profileID)
	}
	return code, image, nil
}

// SendMessage delivers text to a chat through the retry executor. Send is
// a write path: an exhausted budget propagates to the caller.
func (o *Orchestrator) SendMessage(ctx context.Context, profileID int64, chatID, text string) (messageID string, err error) {
	h, err := o.liveHandle(profileID)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	err = o.exec.RunProbed(ctx, "send message", h.Client, func(ctx context.Context) error {
		msg, serr := h.Client.SendMessage(ctx, chatID, text)
		if serr != nil {
			return serr
		}
		messageID = msg.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.IncrCounter("messages_sent_total", 1)
	return messageID, nil
}

// FullSync returns the profile's chat page.
func (o *Orchestrator) FullSync(ctx context.Context, profileID int64) ([]ChatSummary, error) {
	h, err := o.liveHandle(profileID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	return o.sync.FullSync(ctx, h.Client)
}

// IncrementalSync returns chat and message deltas since the cursor.
func (o *Orchestrator) IncrementalSync(ctx context.Context, profileID int64, since time.Time) (*SyncDelta, error) {
	h, err := o.liveHandle(profileID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()
	return o.sync.IncrementalSync(ctx, h.Client, since)
}

// ContactCheck is one number's registration verdict.
type ContactCheck struct {
	Phone      string `json:"phone"`
	Registered bool   `json:"registered"`
	Error      string `json:"error,omitempty"`
}

// CheckRegistered verifies numbers against the remote service, pausing
// between calls so the batch cannot trip remote rate limits. One number
// failing does not abort the rest.
func (o *Orchestrator) CheckRegistered(ctx context.Context, profileID int64, phones []string) ([]ContactCheck, error) {
	h, err := o.liveHandle(profileID)
	if err != nil {
		return nil, err
	}
	out := make([]ContactCheck, 0, len(phones))
	for i, phone := range phones {
		if i > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(o.opts.ContactPause):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		registered, cerr := h.Client.IsRegisteredUser(callCtx, phone)
		cancel()
		check := ContactCheck{Phone: phone, Registered: registered}
		if cerr != nil {
			check.Error = cerr.Error()
			zap.L().Debug("contact check failed",
				zap.String("phone", phone), zap.Error(cerr))
		}
		out = append(out, check)
	}
	return out, nil
}

// ExpireStaleQR closes sessions whose pairing code has been on screen
// longer than maxAge without being scanned. Run from the periodic jobs.
func (o *Orchestrator) ExpireStaleQR(maxAge time.Duration) {
	for _, h := range o.registry.SnapshotAll() {
		code, _, issuedAt := h.QR()
		if code == "" || time.Since(issuedAt) < maxAge {
			continue
		}
		mu := o.lock(h.ProfileID)
		mu.Lock()
		// re-check under the lock, pairing may have completed meanwhile
		code, _, issuedAt = h.QR()
		if code == "" || h.Phase() != PhaseQRReady || time.Since(issuedAt) < maxAge {
			mu.Unlock()
			continue
		}
		if removed := o.registry.Remove(h.ProfileID); removed != nil {
			removed.close()
			removed.Client.Disconnect()
			o.fsm.MarkDisconnected(removed.ProfileID)
			zap.L().Info("stale pairing session expired",
				zap.Int64("profile_id", removed.ProfileID))
		}
		mu.Unlock()
	}
}

// ReconcileSweep runs a reconciliation pass over all rows, used by the
// periodic job between listings.
func (o *Orchestrator) ReconcileSweep() {
	var profiles []domain.Profile
	if err := o.db.Find(&profiles).Error; err != nil {
		zap.L().Error("reconcile sweep load failed", zap.Error(err))
		return
	}
	o.reconciler.ReconcileAll(profiles)
}

func (o *Orchestrator) liveHandle(profileID int64) (*SessionHandle, error) {
	if _, err := o.loadProfile(profileID); err != nil {
		return nil, err
	}
	h := o.registry.Get(profileID)
	if h == nil {
		return nil, errors.Wrapf(ErrNotConnected, "profile %d", profileID)
	}
	return h, nil
}
