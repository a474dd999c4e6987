package checkpoint

import (
	"path/filepath"
	"sync"
	"testing"

	"ceph2swift/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestGetMissingReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)

	rec, err := store.Get("no/such/key")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSaveAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{
		Key:    "docs/a.txt",
		Size:   42,
		ETag:   "abc",
		Status: StatusPending,
	}))

	rec, err := store.Get("docs/a.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, int64(42), rec.Size)
	assert.Equal(t, "abc", rec.ETag)
	assert.False(t, rec.Terminal)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestSaveUpsertsForward(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "k", Status: StatusPending}))
	require.NoError(t, store.Save(&Record{Key: "k", Status: StatusInProgress, Attempts: 1}))
	require.NoError(t, store.Save(&Record{Key: "k", Status: StatusDone, DstChecksum: "deadbeef"}))

	rec, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, "deadbeef", rec.DstChecksum)
}

func TestDoneIsASink(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "k", Status: StatusDone, DstChecksum: "sum"}))

	// A stale retry trying to rewind the record must be a no-op.
	require.NoError(t, store.Save(&Record{Key: "k", Status: StatusInProgress}))

	rec, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, "sum", rec.DstChecksum)
}

func TestTerminalFailureIsASink(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{
		Key:       "k",
		Status:    StatusFailed,
		Terminal:  true,
		Attempts:  3,
		ErrorKind: storage.KindChecksumMismatch,
		LastError: "checksum mismatch",
	}))
	require.NoError(t, store.Save(&Record{Key: "k", Status: StatusPending}))

	rec, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.True(t, rec.Terminal)
	assert.Equal(t, 3, rec.Attempts)
}

func TestResetInProgress(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "a", Status: StatusInProgress}))
	require.NoError(t, store.Save(&Record{Key: "b", Status: StatusDone, DstChecksum: "s"}))
	require.NoError(t, store.Save(&Record{Key: "c", Status: StatusInProgress}))

	n, err := store.ResetInProgress()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, key := range []string{"a", "c"} {
		rec, err := store.Get(key)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, rec.Status, key)
	}
	rec, err := store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
}

func TestResetAll(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "a", Status: StatusDone, DstChecksum: "s"}))
	require.NoError(t, store.Save(&Record{Key: "b", Status: StatusFailed, Terminal: true, Attempts: 3}))

	require.NoError(t, store.ResetAll())

	for _, key := range []string{"a", "b"} {
		rec, err := store.Get(key)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, rec.Status, key)
		assert.Empty(t, rec.DstChecksum, key)
		assert.False(t, rec.Terminal, key)
		assert.Zero(t, rec.Attempts, key)
	}
}

func TestResetSingleKey(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "a", Status: StatusDone, DstChecksum: "s"}))
	require.NoError(t, store.Save(&Record{Key: "b", Status: StatusDone, DstChecksum: "s"}))

	require.NoError(t, store.Reset("a"))

	rec, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Empty(t, rec.DstChecksum)

	rec, err = store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
}

func TestCountsAndListFailed(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "a", Status: StatusDone, DstChecksum: "s"}))
	require.NoError(t, store.Save(&Record{Key: "b", Status: StatusDone, DstChecksum: "s"}))
	require.NoError(t, store.Save(&Record{Key: "c", Status: StatusPending}))
	require.NoError(t, store.Save(&Record{
		Key:       "d",
		Status:    StatusFailed,
		Terminal:  true,
		Attempts:  3,
		ErrorKind: storage.KindNetwork,
		LastError: "connection reset",
	}))

	counts, err := store.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Done)
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(1), counts.Failed)

	failed, err := store.ListFailed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "d", failed[0].Key)
	assert.Equal(t, storage.KindNetwork, failed[0].ErrorKind)
	assert.Equal(t, 3, failed[0].Attempts)
}

func TestReloadAcrossReopen(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.Save(&Record{Key: "a", Status: StatusDone, DstChecksum: "sum"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get("a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, "sum", rec.DstChecksum)
}

func TestConcurrentSaves(t *testing.T) {
	store, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 20; j++ {
				_ = store.Save(&Record{Key: key, Status: StatusInProgress, Attempts: j})
			}
			_ = store.Save(&Record{Key: key, Status: StatusDone, DstChecksum: "sum"})
		}(i)
	}
	wg.Wait()

	counts, err := store.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(8), counts.Done)
}
