package lock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

type fakeArbiter struct {
	mu        sync.Mutex
	holders   map[string]models.Actor
	failNext  error
	released  []string
	onAcquire func()
}

func newFakeArbiter() *fakeArbiter {
	return &fakeArbiter{holders: make(map[string]models.Actor)}
}

func (f *fakeArbiter) AcquireLock(_ context.Context, id string, actor models.Actor) (models.LockGrant, error) {
	if f.onAcquire != nil {
		f.onAcquire()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return models.LockGrant{}, err
	}
	if h, ok := f.holders[id]; ok && h.ID != actor.ID {
		return models.LockGrant{Status: models.LockStatus{Held: true, HolderID: h.ID, HolderDisplayName: h.DisplayName}}, nil
	}
	f.holders[id] = actor
	return models.LockGrant{Granted: true, Status: models.LockStatus{Held: true, HolderID: actor.ID, HolderDisplayName: actor.DisplayName}}, nil
}

func (f *fakeArbiter) ReleaseLock(_ context.Context, id string, actor models.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	if h, ok := f.holders[id]; ok && h.ID == actor.ID {
		delete(f.holders, id)
	}
	f.released = append(f.released, id)
	return nil
}

var (
	ana = models.Actor{ID: "u-ana", DisplayName: "Ana"}
	ben = models.Actor{ID: "u-ben", DisplayName: "Ben"}
)

func TestRequestAndRelease(t *testing.T) {
	arb := newFakeArbiter()
	c := NewCoordinator(arb, ana, nil)
	c.Reset("doc-1", models.LockStatus{})

	assert.Equal(t, Unlocked, c.Status().State)
	assert.False(t, c.CanEdit("doc-1"))

	require.NoError(t, c.Request(context.Background()))
	assert.Equal(t, LockedByMe, c.Status().State)
	assert.True(t, c.CanEdit("doc-1"))

	require.NoError(t, c.Release(context.Background()))
	assert.Equal(t, Unlocked, c.Status().State)
	assert.False(t, c.CanEdit("doc-1"))
}

func TestRequestWhileLockedByOtherIsRejected(t *testing.T) {
	arb := newFakeArbiter()
	c := NewCoordinator(arb, ana, nil)
	c.Reset("doc-1", models.LockStatus{Held: true, HolderID: ben.ID, HolderDisplayName: "Ben"})

	err := c.Request(context.Background())
	assert.ErrorIs(t, err, models.ErrLockConflict)

	st := c.Status()
	assert.Equal(t, LockedByOther, st.State)
	assert.Equal(t, "Ben", st.HolderName)
	assert.False(t, c.CanEdit("doc-1"))
	assert.Empty(t, arb.holders, "no round trip while locked by another actor")
}

func TestServerDenialMovesToLockedByOther(t *testing.T) {
	arb := newFakeArbiter()
	arb.holders["doc-1"] = ben

	c := NewCoordinator(arb, ana, nil)
	c.Reset("doc-1", models.LockStatus{})

	err := c.Request(context.Background())
	assert.ErrorIs(t, err, models.ErrLockConflict)
	assert.Equal(t, LockedByOther, c.Status().State)
	assert.Equal(t, "Ben", c.Status().HolderName)
}

func TestTwoActorsCannotBothHoldTheLock(t *testing.T) {
	arb := newFakeArbiter()
	a := NewCoordinator(arb, ana, nil)
	b := NewCoordinator(arb, ben, nil)
	a.Reset("doc-1", models.LockStatus{})
	b.Reset("doc-1", models.LockStatus{})

	require.NoError(t, a.Request(context.Background()))
	assert.ErrorIs(t, b.Request(context.Background()), models.ErrLockConflict)

	assert.True(t, a.CanEdit("doc-1"))
	assert.False(t, b.CanEdit("doc-1"))
}

func TestCanEditOnlyTheAttachedDocument(t *testing.T) {
	c := NewCoordinator(newFakeArbiter(), ana, nil)
	c.Reset("doc-1", models.LockStatus{})
	require.NoError(t, c.Request(context.Background()))

	assert.True(t, c.CanEdit("doc-1"))
	assert.False(t, c.CanEdit("doc-2"))
	assert.False(t, c.CanEdit(""))

	c.Reset("", models.LockStatus{})
	assert.False(t, c.CanEdit("doc-1"))
}

func TestResetReflectsFetchedStatus(t *testing.T) {
	c := NewCoordinator(newFakeArbiter(), ana, nil)

	c.Reset("doc-1", models.LockStatus{Held: true, HolderID: ana.ID})
	assert.Equal(t, LockedByMe, c.Status().State)

	c.Reset("doc-2", models.LockStatus{})
	assert.Equal(t, Unlocked, c.Status().State)
	assert.Equal(t, "doc-2", c.Status().DocumentID)
}

func TestRemoteFailureLeavesStateUnchanged(t *testing.T) {
	arb := newFakeArbiter()
	c := NewCoordinator(arb, ana, nil)
	c.Reset("doc-1", models.LockStatus{})

	boom := errors.New("connection refused")
	arb.failNext = boom
	assert.ErrorIs(t, c.Request(context.Background()), boom)
	assert.Equal(t, Unlocked, c.Status().State)

	require.NoError(t, c.Request(context.Background()))
	arb.failNext = boom
	assert.ErrorIs(t, c.Release(context.Background()), boom)
	assert.Equal(t, LockedByMe, c.Status().State)
}

func TestRequestWithoutDocument(t *testing.T) {
	c := NewCoordinator(newFakeArbiter(), ana, nil)
	assert.ErrorIs(t, c.Request(context.Background()), ErrNoDocument)
	assert.NoError(t, c.Release(context.Background()))
}

func TestSwitchDuringRequestReleasesGrant(t *testing.T) {
	arb := newFakeArbiter()
	c := NewCoordinator(arb, ana, nil)
	c.Reset("doc-1", models.LockStatus{})

	arb.onAcquire = func() { c.Reset("doc-2", models.LockStatus{}) }

	err := c.Request(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, Unlocked, c.Status().State)
	assert.Equal(t, []string{"doc-1"}, arb.released)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unlocked", Unlocked.String())
	assert.Equal(t, "locked-by-me", LockedByMe.String())
	assert.Equal(t, "locked-by-other", LockedByOther.String())
}
