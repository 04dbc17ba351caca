package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loadedStore(t *testing.T, backend *fakeBackend, opts Options, userID string, limit int) *Store {
	t.Helper()
	store := NewStore(backend, opts)
	require.NoError(t, store.Load(context.Background(), userID, limit))
	return store
}

func requireUnreadConsistent(t *testing.T, store *Store) {
	t.Helper()
	require.Equal(t, countUnread(store.Snapshot()), store.UnreadCount())
}

func TestLoadOrdersNewestFirstAndHonoursLimit(t *testing.T) {
	backend := newFakeBackend(record("u-1", 3), record("u-1", 1), record("u-1", 2), record("u-2", 1))
	store := loadedStore(t, backend, Options{}, "u-1", 2)

	require.Equal(t, []string{"1", "2"}, ids(store.Snapshot()))
	require.Equal(t, 2, store.UnreadCount())
	require.NoError(t, store.Err())
}

func TestLoadFailureLeavesStoreEmpty(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1))
	store := loadedStore(t, backend, Options{}, "u-1", 0)
	require.Len(t, store.Snapshot(), 1)

	backend.setErrors(func(b *fakeBackend) { b.queryErr = errBackendDown })
	err := store.Load(context.Background(), "u-1", 0)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.ErrorIs(t, err, errBackendDown)
	require.Empty(t, store.Snapshot())
	require.Zero(t, store.UnreadCount())
	require.Equal(t, err, store.Err())
}

func TestInsertsIntoCappedStoreKeepMostRecentVisible(t *testing.T) {
	for n := 1; n <= 9; n++ {
		store := NewStore(newFakeBackend(), Options{Cap: CompactCap})
		for i := 0; i < n; i++ {
			rec := record("u-1", 100-i) // each insert is newer than the last
			store.ApplyInsert(rec)
		}

		visible := store.Visible()
		expected := n
		if expected > CompactCap {
			expected = CompactCap
		}
		require.Len(t, visible, expected)
		for i, item := range visible {
			require.Equal(t, record("u-1", 100-(n-1)+i).ID, item.ID)
		}
		requireUnreadConsistent(t, store)
	}
}

func TestApplyInsertPlacesByCreatedAtAndReplacesDuplicates(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-1", 3))
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	store.ApplyInsert(record("u-1", 2))
	require.Equal(t, []string{"1", "2", "3"}, ids(store.Snapshot()))

	updated := record("u-1", 2)
	updated.Read = true
	store.ApplyInsert(updated)
	require.Equal(t, []string{"1", "2", "3"}, ids(store.Snapshot()))
	require.Equal(t, 2, store.UnreadCount())

	store.ApplyInsert(record("u-2", 0))
	require.Len(t, store.Snapshot(), 3)
}

func TestToggleReadTwiceRestoresFlag(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-1", 2), record("u-1", 3))
	store := loadedStore(t, backend, Options{}, "u-1", 0)
	before := store.Snapshot()

	require.NoError(t, store.ToggleRead(context.Background(), "2"))
	mid := store.Snapshot()
	require.True(t, mid[1].Read)
	require.False(t, mid[0].Read)
	require.False(t, mid[2].Read)
	requireUnreadConsistent(t, store)

	require.NoError(t, store.ToggleRead(context.Background(), "2"))
	require.Equal(t, before, store.Snapshot())
	requireUnreadConsistent(t, store)
}

func TestToggleReadUnknownID(t *testing.T) {
	store := loadedStore(t, newFakeBackend(record("u-1", 1)), Options{}, "u-1", 0)
	err := store.ToggleRead(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownNotification)
}

func TestScenarioLoadInsertMarkAllClear(t *testing.T) {
	backend := newFakeBackend()
	for i := 1; i <= 5; i++ {
		backend.rows = append(backend.rows, record("u-1", i))
	}
	store := loadedStore(t, backend, Options{Cap: CompactCap}, "u-1", CompactCap)
	require.Equal(t, 5, store.UnreadCount())

	six := record("u-1", 6)
	six.CreatedAt = baseTime.Add(time.Minute)
	store.ApplyInsert(six)
	require.Equal(t, []string{"6", "1", "2", "3", "4"}, ids(store.Visible()))
	require.Equal(t, 6, store.UnreadCount())

	require.NoError(t, store.MarkAllRead(context.Background()))
	require.Zero(t, store.UnreadCount())
	for _, item := range store.Snapshot() {
		require.True(t, item.Read)
	}
	require.Len(t, store.Snapshot(), 6)

	require.NoError(t, store.ClearAll(context.Background()))
	require.Empty(t, store.Snapshot())
	require.Zero(t, store.UnreadCount())
	require.Empty(t, backend.rows)
}

func TestMarkAllReadKeepsConcurrentInsertUnread(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-1", 2))
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	fresh := record("u-1", 0)
	backend.beforeBulk = func() { store.ApplyInsert(fresh) }

	require.NoError(t, store.MarkAllRead(context.Background()))
	snapshot := store.Snapshot()
	require.Equal(t, []string{"0", "1", "2"}, ids(snapshot))
	require.False(t, snapshot[0].Read)
	require.Equal(t, 1, store.UnreadCount())
}

func TestFailedMutationReconcilesByRefetch(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-1", 2))
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	// The server gained a row the store never saw; the refetch picks it up.
	backend.rows = append(backend.rows, record("u-1", 0))
	backend.setErrors(func(b *fakeBackend) { b.updateErr = errBackendDown })

	err := store.ToggleRead(context.Background(), "1")
	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	require.False(t, mutErr.Reverted)
	require.Equal(t, "toggle_read", mutErr.Op)

	snapshot := store.Snapshot()
	require.Equal(t, []string{"0", "1", "2"}, ids(snapshot))
	require.False(t, snapshot[1].Read)
	requireUnreadConsistent(t, store)
}

func TestFailedMarkAllReadRevertsOnlyTouchedRecords(t *testing.T) {
	read := record("u-1", 3)
	read.Read = true
	backend := newFakeBackend(record("u-1", 1), record("u-1", 2), read)
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	fresh := record("u-1", 0)
	fresh.Read = true
	backend.setErrors(func(b *fakeBackend) {
		b.bulkErr = errBackendDown
		b.queryErr = errBackendDown
		b.beforeBulk = func() { store.ApplyInsert(fresh) }
	})

	err := store.MarkAllRead(context.Background())
	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	require.True(t, mutErr.Reverted)

	snapshot := store.Snapshot()
	require.Equal(t, []string{"0", "1", "2", "3"}, ids(snapshot))
	require.True(t, snapshot[0].Read, "concurrent insert keeps its own state")
	require.False(t, snapshot[1].Read)
	require.False(t, snapshot[2].Read)
	require.True(t, snapshot[3].Read, "already-read record was not touched")
	require.Equal(t, 2, store.UnreadCount())
}

func TestFailedClearAllRestoresRecords(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-1", 2))
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	backend.setErrors(func(b *fakeBackend) {
		b.deleteErr = errBackendDown
		b.queryErr = errBackendDown
	})
	store.ApplyInsert(record("u-1", 0))

	err := store.ClearAll(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"0", "1", "2"}, ids(store.Snapshot()))
	requireUnreadConsistent(t, store)
}

func TestRemoveDeletesSingleRecord(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-1", 2))
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	require.NoError(t, store.Remove(context.Background(), "1"))
	require.Equal(t, []string{"2"}, ids(store.Snapshot()))
	require.Len(t, backend.rows, 1)
}

func TestMutationsBeforeLoad(t *testing.T) {
	store := NewStore(newFakeBackend(), Options{})
	require.ErrorIs(t, store.MarkAllRead(context.Background()), ErrNotLoaded)
	require.ErrorIs(t, store.ClearAll(context.Background()), ErrNotLoaded)
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1))
	store := NewStore(backend, Options{})
	backend.beforeQuery = func() { store.Unmount() }

	require.NoError(t, store.Load(context.Background(), "u-1", 0))
	require.Empty(t, store.Snapshot())
}

func TestLoadForDifferentUserResetsState(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1), record("u-2", 2))
	store := loadedStore(t, backend, Options{}, "u-1", 0)

	require.NoError(t, store.Load(context.Background(), "u-2", 0))
	require.Equal(t, "u-2", store.UserID())
	require.Equal(t, []string{"2"}, ids(store.Snapshot()))
}

func TestChangesCoalesce(t *testing.T) {
	store := NewStore(newFakeBackend(), Options{})
	store.ApplyInsert(record("u-1", 1))
	store.ApplyInsert(record("u-1", 2))

	select {
	case <-store.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-store.Changes():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestMountDeliversRealtimeInsertsAndAlert(t *testing.T) {
	now := baseTime
	backend := newFakeBackend(record("u-1", 1))
	store := NewStore(backend, Options{Cap: CompactCap, Now: func() time.Time { return now }})
	t.Cleanup(store.Unmount)

	require.NoError(t, store.Mount(context.Background(), NewSubscriber(backend), "u-1"))
	require.Equal(t, 1, backend.feedCount("u-1"))

	_, ok := store.Alert(now)
	require.False(t, ok)

	fresh := record("u-1", 0)
	backend.insert(fresh)
	require.Eventually(t, func() bool {
		return len(store.Snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	text, ok := store.Alert(now.Add(time.Second))
	require.True(t, ok)
	require.Equal(t, AlertText, text)
	_, ok = store.Alert(now.Add(DefaultFlashWindow))
	require.False(t, ok)
}

func TestUnmountStopsRealtimeUpdates(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, Options{})
	require.NoError(t, store.Mount(context.Background(), NewSubscriber(backend), "u-1"))
	sub := store.Subscription()
	require.NotNil(t, sub)

	store.Unmount()
	store.Unmount()
	require.Nil(t, store.Subscription())

	backend.insert(record("u-1", 1))
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
	require.Empty(t, store.Snapshot())
}

func TestMountReportsLoadAndSubscribeFailures(t *testing.T) {
	backend := newFakeBackend()
	backend.queryErr = errBackendDown
	backend.subscribeErr = errors.New("socket refused")
	store := NewStore(backend, Options{})

	err := store.Mount(context.Background(), NewSubscriber(backend), "u-1")
	var fetchErr *FetchError
	var subErr *SubscriptionError
	require.ErrorAs(t, err, &fetchErr)
	require.ErrorAs(t, err, &subErr)
	require.Nil(t, store.Subscription())
}

func TestUnmountWhileMountIsLoading(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1))
	store := NewStore(backend, Options{})

	querying := make(chan struct{})
	release := make(chan struct{})
	backend.beforeQuery = func() {
		close(querying)
		<-release
	}

	mounted := make(chan error, 1)
	go func() {
		mounted <- store.Mount(context.Background(), NewSubscriber(backend), "u-1")
	}()

	<-querying
	store.Unmount()
	close(release)
	require.NoError(t, <-mounted)

	require.Nil(t, store.Subscription())
	require.Zero(t, backend.feedCount("u-1"))
	require.Empty(t, store.Snapshot())

	backend.insert(record("u-1", 0))
	require.Empty(t, store.Snapshot())
	require.Zero(t, store.UnreadCount())
	_, alerting := store.Alert(baseTime)
	require.False(t, alerting)
}

func TestUnmountWhileMountIsSubscribing(t *testing.T) {
	backend := newFakeBackend(record("u-1", 1))
	store := NewStore(backend, Options{})
	backend.beforeSubscribe = func() { store.Unmount() }

	require.NoError(t, store.Mount(context.Background(), NewSubscriber(backend), "u-1"))
	require.Nil(t, store.Subscription())
	require.Equal(t, 1, backend.feedCount("u-1"))

	backend.insert(record("u-1", 0))
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, store.Snapshot())
	require.Zero(t, store.UnreadCount())
}
