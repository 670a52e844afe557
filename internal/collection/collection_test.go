package collection

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mycolog/mycolog/internal/datastore"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() logger.Logger {
	return logger.NewConsoleLogger("collection_test", logger.LogLevelError)
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)-1) * time.Second)
	}
}

// factories builds every backend over a fresh key-value store of the kind it
// runs on in production.
func factories() map[string]func(t *testing.T, opts ...Option) (Store, kvstore.Store) {
	return map[string]func(t *testing.T, opts ...Option) (Store, kvstore.Store){
		"blob-memory": func(t *testing.T, opts ...Option) (Store, kvstore.Store) {
			kv := kvstore.NewMemory()
			return newBlob(t, kv, opts...), kv
		},
		"blob-file": func(t *testing.T, opts ...Option) (Store, kvstore.Store) {
			kv, err := kvstore.NewFile(filepath.Join(t.TempDir(), "kv"))
			require.NoError(t, err)
			return newBlob(t, kv, opts...), kv
		},
		"sql-sqlite": func(t *testing.T, opts ...Option) (Store, kvstore.Store) {
			kv := newSQLiteKV(t)
			return newSQL(t, kv, opts...), kv
		},
	}
}

func newBlob(t *testing.T, kv kvstore.Store, opts ...Option) Store {
	t.Helper()
	s := NewBlobStore(kv, append([]Option{WithLogger(testLogger())}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSQLiteKV(t *testing.T) *kvstore.GormStore {
	t.Helper()
	db, err := datastore.OpenSQLite(filepath.Join(t.TempDir(), "mycolog.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = datastore.Close(db) })
	kv, err := kvstore.NewGorm(db)
	require.NoError(t, err)
	return kv
}

func newSQL(t *testing.T, kv kvstore.Store, opts ...Option) Store {
	t.Helper()
	s, err := NewSQLStore(kvstore.DB(kv), kv, append([]Option{WithLogger(testLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func chanterelle() NewRecordInput {
	return NewRecordInput{
		Name:           "Chanterelle",
		ScientificName: "Cantharellus",
		Edibility:      Edible,
		ImageURI:       "img://1",
	}
}

func input(name string, e Edibility) NewRecordInput {
	return NewRecordInput{
		Name:           name,
		ScientificName: name + " sp.",
		Edibility:      e,
		ImageURI:       "img://" + name,
	}
}

func TestAppendReadAllRoundTrip(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			before := time.Now()
			rec, err := s.Append(ctx, chanterelle())
			require.NoError(t, err)

			all, err := s.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)

			got := all[0]
			assert.Equal(t, rec.ID, got.ID)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, "Chanterelle", got.Name)
			assert.Equal(t, "Cantharellus", got.ScientificName)
			assert.Equal(t, Edible, got.Edibility)
			assert.Equal(t, "img://1", got.ImageURI)
			assert.False(t, got.IsFavorite)
			assert.Nil(t, got.Location)
			assert.WithinDuration(t, before, got.SavedAt, 5*time.Second)
		})
	}
}

func TestReadAllEmptyStorage(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s, _ := build(t)
			all, err := s.ReadAll(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, all)
			assert.Empty(t, all)
		})
	}
}

func TestAppendRemoveCountsAndRetrieval(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			var ids []string
			for i := range 6 {
				rec, err := s.Append(ctx, input(fmt.Sprintf("m%d", i), Unknown))
				require.NoError(t, err)
				ids = append(ids, rec.ID)
			}
			require.NoError(t, s.Remove(ctx, ids[1]))
			require.NoError(t, s.Remove(ctx, ids[4]))

			all, err := s.ReadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 4)

			var order []string
			for _, r := range all {
				order = append(order, r.ID)
			}
			assert.Equal(t, []string{ids[0], ids[2], ids[3], ids[5]}, order, "insertion order")

			for _, id := range []string{ids[0], ids[2], ids[3], ids[5]} {
				rec, err := s.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, id, rec.ID)
			}
			_, err = s.Get(ctx, ids[1])
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			a, err := s.Append(ctx, input("a", Edible))
			require.NoError(t, err)
			_, err = s.Append(ctx, input("b", Edible))
			require.NoError(t, err)

			require.NoError(t, s.Remove(ctx, a.ID))
			once, err := s.ReadAll(ctx)
			require.NoError(t, err)
			rev := s.Revision()

			require.NoError(t, s.Remove(ctx, a.ID))
			require.NoError(t, s.Remove(ctx, "never-existed"))
			twice, err := s.ReadAll(ctx)
			require.NoError(t, err)

			assert.Equal(t, once, twice)
			assert.Equal(t, rev, s.Revision(), "no-op removes do not commit")
		})
	}
}

func TestToggleFavorite(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			rec, err := s.Append(ctx, chanterelle())
			require.NoError(t, err)

			fav, err := s.ToggleFavorite(ctx, rec.ID)
			require.NoError(t, err)
			assert.True(t, fav)
			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.True(t, got.IsFavorite)

			fav, err = s.ToggleFavorite(ctx, rec.ID)
			require.NoError(t, err)
			assert.False(t, fav, "two toggles restore the original value")

			_, err = s.ToggleFavorite(ctx, "missing")
			require.Error(t, err)
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestSavedAtNeverChanges(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			start := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
			s, _ := build(t, WithClock(stepClock(start)))

			rec, err := s.Append(ctx, chanterelle())
			require.NoError(t, err)
			assert.True(t, rec.SavedAt.Equal(start))

			_, err = s.ToggleFavorite(ctx, rec.ID)
			require.NoError(t, err)
			_, err = s.Append(ctx, input("other", Poisonous))
			require.NoError(t, err)

			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.True(t, got.SavedAt.Equal(start), "savedAt is fixed at creation")
		})
	}
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*NewRecordInput)
	}{
		{"missing name", func(in *NewRecordInput) { in.Name = "  " }},
		{"missing scientific name", func(in *NewRecordInput) { in.ScientificName = "" }},
		{"missing edibility", func(in *NewRecordInput) { in.Edibility = "" }},
		{"bad edibility", func(in *NewRecordInput) { in.Edibility = "tasty" }},
		{"missing image", func(in *NewRecordInput) { in.ImageURI = "" }},
		{"latitude out of range", func(in *NewRecordInput) { in.Location = &Location{Latitude: 91} }},
		{"longitude out of range", func(in *NewRecordInput) { in.Location = &Location{Longitude: -181} }},
		{"negative confidence", func(in *NewRecordInput) { in.Confidence = -0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newBlob(t, kvstore.NewMemory())
			in := chanterelle()
			tt.mutate(&in)

			_, err := s.Append(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "got %v", err)

			all, err := s.ReadAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestAppendKeepsOptionalFields(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			in := chanterelle()
			in.Location = &Location{Latitude: 60.17, Longitude: 24.94}
			in.Notes = "under birches"
			in.Confidence = 0.92
			in.Description = "golden funnel"
			rec, err := s.Append(ctx, in)
			require.NoError(t, err)

			in.Location.Latitude = 0 // the store must not alias caller input

			got, err := s.Get(ctx, rec.ID)
			require.NoError(t, err)
			require.NotNil(t, got.Location)
			assert.InDelta(t, 60.17, got.Location.Latitude, 1e-9)
			assert.InDelta(t, 24.94, got.Location.Longitude, 1e-9)
			assert.Equal(t, "under birches", got.Notes)
			assert.InDelta(t, 0.92, got.Confidence, 1e-9)
			assert.Equal(t, "golden funnel", got.Description)
		})
	}
}

func TestPerUserScope(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			alice := session.WithUser(context.Background(), session.User{ID: "alice"})
			bob := session.WithUser(context.Background(), session.User{ID: "bob"})
			s, _ := build(t)

			a, err := s.Append(alice, input("a", Edible))
			require.NoError(t, err)
			assert.Equal(t, "alice", a.UserID)
			b, err := s.Append(bob, input("b", Edible))
			require.NoError(t, err)

			got, err := s.ReadAll(alice)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, a.ID, got[0].ID)

			all, err := s.ReadAll(context.Background())
			require.NoError(t, err)
			assert.Len(t, all, 2, "no session sees every record")

			_, err = s.ToggleFavorite(alice, b.ID)
			assert.True(t, errors.IsNotFound(err), "other users' records are invisible")
			require.NoError(t, s.Remove(alice, b.ID))
			_, err = s.Get(bob, b.ID)
			assert.NoError(t, err, "remove of an invisible record is a no-op")
		})
	}
}

func TestConcurrentMutationsAreSerialised(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			target, err := s.Append(ctx, chanterelle())
			require.NoError(t, err)

			const appends, toggles = 20, 10
			var wg sync.WaitGroup
			for i := range appends {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.Append(ctx, input(fmt.Sprintf("c%d", i), Unknown))
					assert.NoError(t, err)
				}(i)
			}
			for range toggles {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.ToggleFavorite(ctx, target.ID)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			all, err := s.ReadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, appends+1, "no append may be lost")

			got, err := s.Get(ctx, target.ID)
			require.NoError(t, err)
			assert.False(t, got.IsFavorite, "an even number of toggles cancels out")
			assert.Equal(t, uint64(appends+toggles+1), s.Revision())
		})
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	t.Parallel()
	for name, build := range factories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s, _ := build(t)

			ch, cancel := s.Subscribe()
			defer cancel()

			rec, err := s.Append(ctx, chanterelle())
			require.NoError(t, err)
			_, err = s.ToggleFavorite(ctx, rec.ID)
			require.NoError(t, err)
			require.NoError(t, s.Remove(ctx, rec.ID))

			want := []ChangeKind{ChangeAppended, ChangeFavorite, ChangeRemoved}
			for i, kind := range want {
				select {
				case c := <-ch:
					assert.Equal(t, kind, c.Kind)
					assert.Equal(t, rec.ID, c.ID)
					assert.Equal(t, uint64(i+1), c.Revision)
				case <-time.After(2 * time.Second):
					t.Fatalf("timed out waiting for %s", kind)
				}
			}
		})
	}
}

func TestCloseStopsWriter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	kv := kvstore.NewMemory()
	s := NewBlobStore(kv, WithLogger(testLogger()))
	ch, _ := s.Subscribe()

	_, err := s.Append(context.Background(), chanterelle())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	// drain and observe the closed channel
	for range ch {
	}

	_, err = s.Append(context.Background(), chanterelle())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	late, _ := s.Subscribe()
	_, open := <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
}

func TestCancelledCallerDoesNotAbortWrite(t *testing.T) {
	t.Parallel()

	kv := newBlockingKV()
	s := newBlob(t, kv)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Append(ctx, chanterelle())
		errCh <- err
	}()

	<-kv.entered // the writer is inside Set
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(kv.release)
	require.Eventually(t, func() bool {
		all, err := s.ReadAll(context.Background())
		return err == nil && len(all) == 1
	}, 2*time.Second, 10*time.Millisecond, "the accepted write still commits")
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := &failingKV{MemoryStore: kvstore.NewMemory()}
	s := newBlob(t, kv)

	rec, err := s.Append(ctx, chanterelle())
	require.NoError(t, err)

	kv.failSet.Store(true)
	_, err = s.Append(ctx, input("lost", Poisonous))
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))

	_, err = s.ToggleFavorite(ctx, rec.ID)
	assert.True(t, errors.IsPersistence(err))

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsFavorite)
	assert.Equal(t, uint64(1), s.Revision())
}

func TestReadFailureIsPersistenceError(t *testing.T) {
	t.Parallel()
	kv := &failingKV{MemoryStore: kvstore.NewMemory()}
	kv.failGet.Store(true)
	s := newBlob(t, kv)

	_, err := s.ReadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))

	kv.failGet.Store(false)
	all, err := s.ReadAll(context.Background())
	require.NoError(t, err, "a failed first load is retried")
	assert.Empty(t, all)
}

func TestCorruptBlobIsPersistenceError(t *testing.T) {
	t.Parallel()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(context.Background(), kvstore.KeyCollection, "{oops"))
	s := newBlob(t, kv)

	_, err := s.ReadAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
}

func TestDuplicateGeneratedIDRejected(t *testing.T) {
	t.Parallel()
	s := newBlob(t, kvstore.NewMemory(), WithIDGenerator(func() string { return "same" }))

	_, err := s.Append(context.Background(), chanterelle())
	require.NoError(t, err)
	_, err = s.Append(context.Background(), chanterelle())
	require.Error(t, err)

	all, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1, "ids stay unique")
}

// failingKV fails Get or Set on demand.
type failingKV struct {
	*kvstore.MemoryStore
	failGet atomic.Bool
	failSet atomic.Bool
}

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet.Load() {
		return "", false, errors.Persistence(errors.NewStd("disk unreadable"), "get")
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.failSet.Load() {
		return errors.Persistence(errors.NewStd("disk full"), "set")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

// blockingKV parks the first Set until release is closed.
type blockingKV struct {
	*kvstore.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingKV() *blockingKV {
	return &blockingKV{
		MemoryStore: kvstore.NewMemory(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (b *blockingKV) Set(ctx context.Context, key, value string) error {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.MemoryStore.Set(ctx, key, value)
}
