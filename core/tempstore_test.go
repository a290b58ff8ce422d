package core

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) (*TemporaryAuthorizationStore, *fakeClock, *fakeResolver, *fakeChecker, *atomic.Int64) {
	t.Helper()

	clock := newFakeClock()
	resolver := newFakeResolver()
	checker := newFakeChecker()

	var changed atomic.Int64
	store := NewTemporaryAuthorizationStore(TemporaryAuthorizationStoreConfig{
		Logger:    testLogger(t),
		Resolver:  resolver,
		Checker:   checker,
		Clock:     clock,
		OnChanged: func() { changed.Add(1) },
	})
	t.Cleanup(store.Stop)

	return store, clock, resolver, checker, &changed
}

func TestTemporaryAuthorizationStore_AddAndLookup(t *testing.T) {
	store, _, _, checker, changed := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)
	session := SessionSubject{ID: "s1"}

	id, err := store.AddAuthorization(subject, session, "org.example.mount")
	require.NoError(t, err)
	assert.Equal(t, "tmpauthz1", id)
	assert.Equal(t, int64(1), changed.Load())

	gotID, ok := store.HasAuthorization(subject, "org.example.mount")
	assert.True(t, ok)
	assert.Equal(t, id, gotID)

	// A different action is a different grant
	_, ok = store.HasAuthorization(subject, "org.example.reboot")
	assert.False(t, ok)

	// Ids keep counting across grants
	id2, err := store.AddAuthorization(subject, session, "org.example.reboot")
	require.NoError(t, err)
	assert.Equal(t, "tmpauthz2", id2)
}

func TestTemporaryAuthorizationStore_AtMostOnePerSubjectAction(t *testing.T) {
	store, _, _, checker, _ := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)
	session := SessionSubject{ID: "s1"}

	_, err := store.AddAuthorization(subject, session, "org.example.mount")
	require.NoError(t, err)

	_, err = store.AddAuthorization(subject, session, "org.example.mount")
	require.Error(t, err)
	assert.Equal(t, CodeConflict, GetErrorCode(err))
	assert.Equal(t, 1, store.Count())
}

func TestTemporaryAuthorizationStore_ExpiresAfterTTL(t *testing.T) {
	store, clock, _, checker, _ := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)

	_, err := store.AddAuthorization(subject, SessionSubject{ID: "s1"}, "org.example.mount")
	require.NoError(t, err)

	// Just before the deadline the grant is still live
	clock.Advance(299 * time.Second)
	_, ok := store.HasAuthorization(subject, "org.example.mount")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = store.HasAuthorization(subject, "org.example.mount")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Count())
}

func TestTemporaryAuthorizationStore_VanishedProcessRemovedByPoll(t *testing.T) {
	store, clock, _, checker, _ := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)

	_, err := store.AddAuthorization(subject, SessionSubject{ID: "s1"}, "org.example.mount")
	require.NoError(t, err)

	// Stays alive across several poll rounds
	clock.Advance(10 * time.Second)
	_, ok := store.HasAuthorization(subject, "org.example.mount")
	assert.True(t, ok)

	checker.setAlive(100, false)
	clock.Advance(2 * time.Second)
	_, ok = store.HasAuthorization(subject, "org.example.mount")
	assert.False(t, ok)
}

func TestTemporaryAuthorizationStore_ExpiryAndRevocationRace(t *testing.T) {
	store, clock, _, checker, changed := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)
	session := SessionSubject{ID: "s1"}

	id, err := store.AddAuthorization(subject, session, "org.example.mount")
	require.NoError(t, err)

	require.NoError(t, store.RemoveByID(id, session))
	before := changed.Load()

	// The expiration deadline passing after removal must not fire again
	clock.Advance(400 * time.Second)
	assert.Equal(t, before, changed.Load())
	assert.Equal(t, 0, store.Count())
}

func TestTemporaryAuthorizationStore_RemoveByIDOwnership(t *testing.T) {
	store, _, _, checker, _ := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)
	owner := SessionSubject{ID: "s1"}

	id, err := store.AddAuthorization(subject, owner, "org.example.mount")
	require.NoError(t, err)

	err = store.RemoveByID(id, SessionSubject{ID: "s2"})
	require.Error(t, err)
	assert.Equal(t, CodePermissionDenied, GetErrorCode(err))
	assert.Equal(t, 1, store.Count())

	require.NoError(t, store.RemoveByID(id, owner))
	assert.Equal(t, 0, store.Count())

	err = store.RemoveByID(id, owner)
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, GetErrorCode(err))
}

func TestTemporaryAuthorizationStore_RemoveAllForSessionBatches(t *testing.T) {
	store, _, _, checker, changed := createTestStore(t)

	checker.setAlive(100, true)
	checker.setAlive(101, true)
	session := SessionSubject{ID: "s1"}

	_, err := store.AddAuthorization(ProcessSubject{Pid: 100, StartTime: 1}, session, "org.example.mount")
	require.NoError(t, err)
	_, err = store.AddAuthorization(ProcessSubject{Pid: 101, StartTime: 1}, session, "org.example.mount")
	require.NoError(t, err)
	_, err = store.AddAuthorization(ProcessSubject{Pid: 100, StartTime: 1}, SessionSubject{ID: "s2"}, "org.example.reboot")
	require.NoError(t, err)

	before := changed.Load()
	removed := store.RemoveAllForSession(session)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Count())

	// One notification for the whole batch
	assert.Equal(t, before+1, changed.Load())

	// Clearing an already-clean session emits nothing
	before = changed.Load()
	assert.Equal(t, 0, store.RemoveAllForSession(session))
	assert.Equal(t, before, changed.Load())
}

func TestTemporaryAuthorizationStore_BusNameResolvesToProcess(t *testing.T) {
	store, _, resolver, checker, _ := createTestStore(t)

	process := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)
	resolver.setBusOwner(":1.42", process)

	_, err := store.AddAuthorization(BusNameSubject{Name: ":1.42"}, SessionSubject{ID: "s1"}, "org.example.mount")
	require.NoError(t, err)

	// The grant is keyed by the resolved process, so both subject forms hit
	_, ok := store.HasAuthorization(process, "org.example.mount")
	assert.True(t, ok)
	_, ok = store.HasAuthorization(BusNameSubject{Name: ":1.42"}, "org.example.mount")
	assert.True(t, ok)
}

func TestTemporaryAuthorizationStore_RemoveAllForBusName(t *testing.T) {
	store, _, _, _, changed := createTestStore(t)

	// Unresolvable names keep their transport form
	_, err := store.AddAuthorization(BusNameSubject{Name: ":1.7"}, SessionSubject{ID: "s1"}, "org.example.mount")
	require.NoError(t, err)
	_, err = store.AddAuthorization(BusNameSubject{Name: ":1.7"}, SessionSubject{ID: "s1"}, "org.example.reboot")
	require.NoError(t, err)

	before := changed.Load()
	assert.Equal(t, 2, store.RemoveAllForBusName(":1.7"))
	assert.Equal(t, 0, store.Count())

	// One notification for the whole batch
	assert.Equal(t, before+1, changed.Load())

	// A name with no grants emits nothing
	before = changed.Load()
	assert.Equal(t, 0, store.RemoveAllForBusName(":1.7"))
	assert.Equal(t, before, changed.Load())
}

func TestTemporaryAuthorizationStore_EnumerateReturnsCopies(t *testing.T) {
	store, _, _, checker, _ := createTestStore(t)

	subject := ProcessSubject{Pid: 100, StartTime: 7}
	checker.setAlive(100, true)
	session := SessionSubject{ID: "s1"}

	id, err := store.AddAuthorization(subject, session, "org.example.mount")
	require.NoError(t, err)

	grants := store.EnumerateForSession(session)
	require.Len(t, grants, 1)
	assert.Equal(t, id, grants[0].ID)
	assert.Equal(t, "org.example.mount", grants[0].ActionID)
	assert.True(t, grants[0].TimeExpires.After(grants[0].TimeGranted))

	grants[0].ActionID = "mutated"
	fresh := store.EnumerateForSession(session)
	require.Len(t, fresh, 1)
	assert.Equal(t, "org.example.mount", fresh[0].ActionID)

	assert.Empty(t, store.EnumerateForSession(SessionSubject{ID: "s2"}))
}
