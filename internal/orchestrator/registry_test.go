package orchestrator

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := newSessionHandle(1, "c1", newFakeClient())

	require.NoError(t, r.Register(h))
	assert.Same(t, h, r.Get(1))
	assert.Nil(t, r.Get(2))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejectsDoubleRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newSessionHandle(1, "c1", newFakeClient())))

	err := r.Register(newSessionHandle(1, "c1", newFakeClient()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRegistered))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	h := newSessionHandle(1, "c1", newFakeClient())
	require.NoError(t, r.Register(h))

	assert.Same(t, h, r.Remove(1))
	assert.Nil(t, r.Get(1))
	assert.Nil(t, r.Remove(1))

	// removed profile can be registered again
	require.NoError(t, r.Register(newSessionHandle(1, "c2", newFakeClient())))
}

// Concurrent registrations for one profile must yield exactly one winner.
func TestRegistryExclusivityUnderConcurrency(t *testing.T) {
	r := NewRegistry()
	const workers = 32
	var wins int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if r.Register(newSessionHandle(7, "c", newFakeClient())) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySnapshotAll(t *testing.T) {
	r := NewRegistry()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, r.Register(newSessionHandle(i, "c", newFakeClient())))
	}
	snap := r.SnapshotAll()
	assert.Len(t, snap, 5)

	// snapshot is a copy, mutating it does not affect the registry
	snap = snap[:0]
	assert.Equal(t, 5, r.Len())
}
