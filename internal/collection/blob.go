package collection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
)

// BlobStore keeps the whole collection as one JSON array under
// kvstore.KeyCollection. Every mutation rewrites the full array, so its cost
// grows with the collection size; that is fine for a personal log of up to a
// few thousand finds.
//
// The committed array is mirrored in memory. Readers copy from that snapshot
// and never wait for the writer; the writer replaces it only after the
// key-value write succeeded, so a failed write leaves readers on the previous
// state. The store assumes it is the only writer of its key.
type BlobStore struct {
	kv     kvstore.Store
	opts   options
	log    logger.Logger
	w      *writer
	events *broadcaster
	rev    atomic.Uint64

	mu      sync.RWMutex
	records []Record
	loaded  bool
}

// NewBlobStore starts the writer goroutine. The caller keeps ownership of kv.
func NewBlobStore(kv kvstore.Store, opts ...Option) *BlobStore {
	o := buildOptions(opts)
	log := o.log.With(logger.String("backend", "blob"), logger.String("driver", kv.Driver()))
	return &BlobStore{
		kv:     kv,
		opts:   o,
		log:    log,
		w:      newWriter(o.queue),
		events: newBroadcaster(log),
	}
}

// ensureLoaded runs the first load, including the legacy favorites
// migration, on the writer goroutine.
func (s *BlobStore) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err := submit(ctx, s.w, func() (struct{}, error) {
		return struct{}{}, s.load(context.WithoutCancel(ctx))
	})
	return err
}

// load must run on the writer goroutine.
func (s *BlobStore) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	start := time.Now()

	raw, ok, err := s.kv.Get(ctx, kvstore.KeyCollection)
	if err != nil {
		err = errors.Persistence(err, "read collection")
		s.opts.observe(opLoad, start, err)
		return err
	}
	records := []Record{}
	if ok {
		if records, err = decodeBlob(raw); err != nil {
			s.opts.observe(opLoad, start, err)
			return err
		}
	}

	ids, present, err := legacyFavorites(ctx, s.kv)
	if err != nil {
		s.opts.observe(opLoad, start, err)
		return err
	}
	if present {
		changed := mergeFavorites(records, ids)
		if err := s.writeBlob(ctx, records); err != nil {
			s.opts.observe(opLoad, start, err)
			return err
		}
		if err := s.kv.Remove(ctx, kvstore.KeyFavorites); err != nil {
			err = errors.Persistence(err, "remove legacy favorites")
			s.opts.observe(opLoad, start, err)
			return err
		}
		s.log.Info("migrated legacy favorites into collection",
			logger.Int("listed", len(ids)),
			logger.Int("updated", changed))
	}

	s.mu.Lock()
	s.records = records
	s.loaded = true
	s.mu.Unlock()

	if present {
		s.events.publish(Change{Kind: ChangeMigrated, Revision: s.rev.Add(1)})
	}
	s.log.Debug("collection loaded", logger.Int("records", len(records)))
	s.opts.observe(opLoad, start, nil)
	return nil
}

func (s *BlobStore) writeBlob(ctx context.Context, records []Record) error {
	raw, err := encodeBlob(records)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, kvstore.KeyCollection, raw); err != nil {
		return errors.Persistence(err, "write collection")
	}
	return nil
}

// commit persists next, publishes it as the snapshot and notifies
// subscribers. Runs on the writer goroutine.
func (s *BlobStore) commit(ctx context.Context, next []Record, c Change) error {
	if err := s.writeBlob(ctx, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()

	c.Revision = s.rev.Add(1)
	s.events.publish(c)
	return nil
}

// snapshot returns the committed records. Callers must not modify the slice.
func (s *BlobStore) snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

func (s *BlobStore) Append(ctx context.Context, in NewRecordInput) (Record, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		s.opts.observe(opAppend, start, err)
		return Record{}, err
	}
	owner := scopeFrom(ctx)

	rec, err := submit(ctx, s.w, func() (Record, error) {
		wctx := context.WithoutCancel(ctx)
		if err := s.load(wctx); err != nil {
			return Record{}, err
		}
		current := s.snapshot()
		rec := newRecord(in, s.opts.newID(), owner, s.opts.now())
		for i := range current {
			if current[i].ID == rec.ID {
				return Record{}, errors.Newf("generated id %q already exists", rec.ID).
					Component(storeComponent).
					Category(errors.CategoryState).
					Build()
			}
		}

		next := make([]Record, len(current), len(current)+1)
		copy(next, current)
		next = append(next, rec)
		saved := rec.clone()
		if err := s.commit(wctx, next, Change{Kind: ChangeAppended, ID: rec.ID, Record: &saved}); err != nil {
			return Record{}, err
		}
		return rec, nil
	})
	s.opts.observe(opAppend, start, err)
	if err != nil {
		s.log.Error("append failed", logger.Error(err))
		return Record{}, err
	}
	s.log.Debug("record appended",
		logger.String("id", rec.ID),
		logger.String("edibility", string(rec.Edibility)))
	return rec.clone(), nil
}

func (s *BlobStore) ReadAll(ctx context.Context) ([]Record, error) {
	start := time.Now()
	if err := s.ensureLoaded(ctx); err != nil {
		s.opts.observe(opReadAll, start, err)
		return nil, err
	}
	scope := scopeFrom(ctx)
	current := s.snapshot()

	out := make([]Record, 0, len(current))
	for i := range current {
		if visible(&current[i], scope) {
			out = append(out, current[i].clone())
		}
	}
	s.opts.observe(opReadAll, start, nil)
	return out, nil
}

func (s *BlobStore) Get(ctx context.Context, id string) (Record, error) {
	start := time.Now()
	if err := s.ensureLoaded(ctx); err != nil {
		s.opts.observe(opGet, start, err)
		return Record{}, err
	}
	scope := scopeFrom(ctx)
	current := s.snapshot()
	for i := range current {
		if current[i].ID == id && visible(&current[i], scope) {
			s.opts.observe(opGet, start, nil)
			return current[i].clone(), nil
		}
	}
	err := errors.NotFound("record", id)
	s.opts.observe(opGet, start, err)
	return Record{}, err
}

func (s *BlobStore) Remove(ctx context.Context, id string) error {
	start := time.Now()
	scope := scopeFrom(ctx)

	_, err := submit(ctx, s.w, func() (bool, error) {
		wctx := context.WithoutCancel(ctx)
		if err := s.load(wctx); err != nil {
			return false, err
		}
		current := s.snapshot()
		idx := indexOf(current, id, scope)
		if idx < 0 {
			return false, nil
		}
		next := make([]Record, 0, len(current)-1)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		return true, s.commit(wctx, next, Change{Kind: ChangeRemoved, ID: id})
	})
	s.opts.observe(opRemove, start, err)
	if err != nil {
		s.log.Error("remove failed", logger.String("id", id), logger.Error(err))
		return err
	}
	return nil
}

func (s *BlobStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	scope := scopeFrom(ctx)

	fav, err := submit(ctx, s.w, func() (bool, error) {
		wctx := context.WithoutCancel(ctx)
		if err := s.load(wctx); err != nil {
			return false, err
		}
		current := s.snapshot()
		idx := indexOf(current, id, scope)
		if idx < 0 {
			return false, errors.NotFound("record", id)
		}
		next := make([]Record, len(current))
		copy(next, current)
		next[idx].IsFavorite = !next[idx].IsFavorite

		updated := next[idx].clone()
		if err := s.commit(wctx, next, Change{Kind: ChangeFavorite, ID: id, Record: &updated}); err != nil {
			return false, err
		}
		return updated.IsFavorite, nil
	})
	s.opts.observe(opFavorite, start, err)
	if err != nil {
		if !errors.IsNotFound(err) {
			s.log.Error("toggle favorite failed", logger.String("id", id), logger.Error(err))
		}
		return false, err
	}
	return fav, nil
}

func (s *BlobStore) Revision() uint64 { return s.rev.Load() }

func (s *BlobStore) Subscribe() (<-chan Change, func()) { return s.events.subscribe() }

// Close waits for queued mutations, then stops the writer and closes every
// subscription. The key-value store is left open.
func (s *BlobStore) Close() error {
	s.w.close()
	s.events.close()
	return nil
}

// indexOf finds id among the records visible to scope.
func indexOf(records []Record, id, scope string) int {
	for i := range records {
		if records[i].ID == id && visible(&records[i], scope) {
			return i
		}
	}
	return -1
}
