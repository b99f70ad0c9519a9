package orchestrator

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyRegistered is returned when a second handle is registered for a
// profile that still owns a live one.
var ErrAlreadyRegistered = errors.New("session already registered for profile")

// Registry maps profile ids to live session handles. It enforces at most one
// handle per profile; callers must Remove before re-registering.
type Registry struct {
	mu      sync.RWMutex
	handles map[int64]*SessionHandle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[int64]*SessionHandle)}
}

// Register stores the handle for its profile. Registering over an existing
// live handle is refused; replacement must go through Remove first so the
// old handle is torn down exactly once.
func (r *Registry) Register(h *SessionHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h.ProfileID]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "profile %d", h.ProfileID)
	}
	r.handles[h.ProfileID] = h
	return nil
}

// Get returns the live handle for a profile, or nil when none exists.
func (r *Registry) Get(profileID int64) *SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[profileID]
}

// Remove deletes and returns the handle for a profile. The caller owns the
// returned handle's teardown.
func (r *Registry) Remove(profileID int64) *SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.handles[profileID]
	delete(r.handles, profileID)
	return h
}

// SnapshotAll returns the current handles. The slice is a copy; the handles
// are shared.
func (r *Registry) SnapshotAll() []*SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SessionHandle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	return out
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
