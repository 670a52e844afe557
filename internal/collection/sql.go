package collection

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
	"gorm.io/gorm"
)

// recordRow is the mushroom_records table. Seq keeps insertion order.
type recordRow struct {
	Seq            uint   `gorm:"primaryKey;autoIncrement"`
	ID             string `gorm:"size:64;uniqueIndex;not null"`
	UserID         string `gorm:"size:64;index"`
	Name           string `gorm:"size:255;not null"`
	ScientificName string `gorm:"size:255;not null"`
	Edibility      string `gorm:"size:16;index;not null"`
	ImageURI       string `gorm:"size:1024;not null"`
	Latitude       *float64
	Longitude      *float64
	Notes          string `gorm:"type:text"`
	Confidence     float64
	Description    string    `gorm:"type:text"`
	SavedAt        time.Time `gorm:"index;not null"`
	IsFavorite     bool      `gorm:"index;not null;default:false"`
}

func (recordRow) TableName() string { return "mushroom_records" }

func rowFromRecord(r *Record) recordRow {
	row := recordRow{
		ID:             r.ID,
		UserID:         r.UserID,
		Name:           r.Name,
		ScientificName: r.ScientificName,
		Edibility:      string(r.Edibility),
		ImageURI:       r.ImageURI,
		Notes:          r.Notes,
		Confidence:     r.Confidence,
		Description:    r.Description,
		SavedAt:        r.SavedAt.UTC(),
		IsFavorite:     r.IsFavorite,
	}
	if r.Location != nil {
		lat, lon := r.Location.Latitude, r.Location.Longitude
		row.Latitude, row.Longitude = &lat, &lon
	}
	return row
}

func (row *recordRow) record() Record {
	r := Record{
		ID:             row.ID,
		UserID:         row.UserID,
		Name:           row.Name,
		ScientificName: row.ScientificName,
		Edibility:      normalizeEdibility(row.Edibility),
		ImageURI:       row.ImageURI,
		Notes:          row.Notes,
		Confidence:     row.Confidence,
		Description:    row.Description,
		SavedAt:        row.SavedAt.UTC(),
		IsFavorite:     row.IsFavorite,
	}
	if row.Latitude != nil && row.Longitude != nil {
		r.Location = &Location{Latitude: *row.Latitude, Longitude: *row.Longitude}
	}
	return r
}

// SQLStore keeps one row per record in a gorm database. Reads query the table
// directly; mutations go through the same single writer as BlobStore.
type SQLStore struct {
	db     *gorm.DB
	legacy kvstore.Store
	opts   options
	log    logger.Logger
	w      *writer
	events *broadcaster
	rev    atomic.Uint64
	loaded atomic.Bool
}

// NewSQLStore migrates the mushroom_records table. When legacy is not nil,
// the first load imports a collection blob and favorites list found there
// and then removes both keys. The caller keeps ownership of db and legacy.
func NewSQLStore(db *gorm.DB, legacy kvstore.Store, opts ...Option) (*SQLStore, error) {
	o := buildOptions(opts)
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, errors.Persistence(err, "migrate mushroom_records")
	}
	log := o.log.With(logger.String("backend", "sql"), logger.String("driver", db.Dialector.Name()))
	return &SQLStore{
		db:     db,
		legacy: legacy,
		opts:   o,
		log:    log,
		w:      newWriter(o.queue),
		events: newBroadcaster(log),
	}, nil
}

// scoped restricts a query to rows visible to scope.
func scoped(tx *gorm.DB, scope string) *gorm.DB {
	if scope == "" {
		return tx
	}
	return tx.Where("(user_id = ? OR user_id = '')", scope)
}

func (s *SQLStore) ensureLoaded(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	_, err := submit(ctx, s.w, func() (struct{}, error) {
		return struct{}{}, s.load(context.WithoutCancel(ctx))
	})
	return err
}

// load imports legacy key-value data once. Must run on the writer goroutine.
func (s *SQLStore) load(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	if s.legacy == nil {
		s.loaded.Store(true)
		return nil
	}
	start := time.Now()
	imported, migrated, err := s.importLegacy(ctx)
	s.opts.observe(opLoad, start, err)
	if err != nil {
		return err
	}
	s.loaded.Store(true)
	if migrated {
		s.log.Info("imported legacy collection", logger.Int("records", imported))
		s.events.publish(Change{Kind: ChangeMigrated, Revision: s.rev.Add(1)})
	}
	return nil
}

func (s *SQLStore) importLegacy(ctx context.Context) (imported int, migrated bool, err error) {
	raw, hasBlob, err := s.legacy.Get(ctx, kvstore.KeyCollection)
	if err != nil {
		return 0, false, errors.Persistence(err, "read legacy collection")
	}
	ids, hasFavs, err := legacyFavorites(ctx, s.legacy)
	if err != nil {
		return 0, false, err
	}
	if !hasBlob && !hasFavs {
		return 0, false, nil
	}

	records := []Record{}
	if hasBlob {
		if records, err = decodeBlob(raw); err != nil {
			return 0, false, err
		}
	}
	mergeFavorites(records, ids)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			var n int64
			if err := tx.Model(&recordRow{}).Where("id = ?", records[i].ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			row := rowFromRecord(&records[i])
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			imported++
		}
		if len(ids) > 0 {
			return tx.Model(&recordRow{}).Where("id IN ?", ids).Update("is_favorite", true).Error
		}
		return nil
	})
	if err != nil {
		return 0, false, errors.Persistence(err, "import legacy collection")
	}

	for _, key := range []string{kvstore.KeyCollection, kvstore.KeyFavorites} {
		if err := s.legacy.Remove(ctx, key); err != nil {
			return imported, true, errors.Persistence(err, "remove legacy key")
		}
	}
	return imported, true, nil
}

func (s *SQLStore) Append(ctx context.Context, in NewRecordInput) (Record, error) {
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
		rec := newRecord(in, s.opts.newID(), owner, s.opts.now())
		row := rowFromRecord(&rec)
		if err := s.db.WithContext(wctx).Create(&row).Error; err != nil {
			return Record{}, errors.Persistence(err, "insert record")
		}
		saved := rec.clone()
		s.events.publish(Change{Kind: ChangeAppended, ID: rec.ID, Record: &saved, Revision: s.rev.Add(1)})
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
	return rec, nil
}

func (s *SQLStore) ReadAll(ctx context.Context) ([]Record, error) {
	start := time.Now()
	if err := s.ensureLoaded(ctx); err != nil {
		s.opts.observe(opReadAll, start, err)
		return nil, err
	}

	var rows []recordRow
	err := scoped(s.db.WithContext(ctx), scopeFrom(ctx)).Order("seq ASC").Find(&rows).Error
	if err != nil {
		err = errors.Persistence(err, "read records")
		s.opts.observe(opReadAll, start, err)
		return nil, err
	}
	out := make([]Record, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	s.opts.observe(opReadAll, start, nil)
	return out, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	start := time.Now()
	if err := s.ensureLoaded(ctx); err != nil {
		s.opts.observe(opGet, start, err)
		return Record{}, err
	}
	row, err := s.find(s.db.WithContext(ctx), id, scopeFrom(ctx))
	s.opts.observe(opGet, start, err)
	if err != nil {
		return Record{}, err
	}
	return row.record(), nil
}

// find loads one visible row, mapping a missing row to a not-found error.
func (s *SQLStore) find(tx *gorm.DB, id, scope string) (recordRow, error) {
	var row recordRow
	err := scoped(tx.Where("id = ?", id), scope).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, errors.NotFound("record", id)
	}
	if err != nil {
		return row, errors.Persistence(err, "read record")
	}
	return row, nil
}

func (s *SQLStore) Remove(ctx context.Context, id string) error {
	start := time.Now()
	scope := scopeFrom(ctx)

	_, err := submit(ctx, s.w, func() (bool, error) {
		wctx := context.WithoutCancel(ctx)
		if err := s.load(wctx); err != nil {
			return false, err
		}
		res := scoped(s.db.WithContext(wctx).Where("id = ?", id), scope).Delete(&recordRow{})
		if res.Error != nil {
			return false, errors.Persistence(res.Error, "delete record")
		}
		if res.RowsAffected == 0 {
			return false, nil
		}
		s.events.publish(Change{Kind: ChangeRemoved, ID: id, Revision: s.rev.Add(1)})
		return true, nil
	})
	s.opts.observe(opRemove, start, err)
	if err != nil {
		s.log.Error("remove failed", logger.String("id", id), logger.Error(err))
	}
	return err
}

func (s *SQLStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	scope := scopeFrom(ctx)

	fav, err := submit(ctx, s.w, func() (bool, error) {
		wctx := context.WithoutCancel(ctx)
		if err := s.load(wctx); err != nil {
			return false, err
		}
		var updated recordRow
		err := s.db.WithContext(wctx).Transaction(func(tx *gorm.DB) error {
			row, err := s.find(tx, id, scope)
			if err != nil {
				return err
			}
			row.IsFavorite = !row.IsFavorite
			if err := tx.Model(&recordRow{}).Where("seq = ?", row.Seq).Update("is_favorite", row.IsFavorite).Error; err != nil {
				return errors.Persistence(err, "update favorite")
			}
			updated = row
			return nil
		})
		if err != nil {
			return false, err
		}
		rec := updated.record()
		s.events.publish(Change{Kind: ChangeFavorite, ID: id, Record: &rec, Revision: s.rev.Add(1)})
		return rec.IsFavorite, nil
	})
	s.opts.observe(opFavorite, start, err)
	if err != nil && !errors.IsNotFound(err) {
		s.log.Error("toggle favorite failed", logger.String("id", id), logger.Error(err))
	}
	return fav, err
}

func (s *SQLStore) Revision() uint64 { return s.rev.Load() }

func (s *SQLStore) Subscribe() (<-chan Change, func()) { return s.events.subscribe() }

// Close stops the writer after queued mutations finish. The database and the
// legacy key-value store are left open.
func (s *SQLStore) Close() error {
	s.w.close()
	s.events.close()
	return nil
}
