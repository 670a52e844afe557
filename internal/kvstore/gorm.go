package kvstore

import (
	"context"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one key-value row.
type Entry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default "entries".
func (Entry) TableName() string { return "kv_entries" }

// GormStore keeps values in the kv_entries table of a sqlite or mysql database.
type GormStore struct {
	db      *gorm.DB
	driver  string
	ownsDB  bool
	closeFn func(*gorm.DB) error
}

// NewGorm migrates the kv_entries table on db. The caller keeps ownership of db.
func NewGorm(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db, driver: db.Dialector.Name()}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, persistenceError(err, s.driver, "migrate", "")
	}
	return s, nil
}

func (s *GormStore) Driver() string { return s.driver }

func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(s.driver, "get", key); err != nil {
		return "", false, err
	}
	var e Entry
	err := s.db.WithContext(ctx).Where(keyEquals(key)).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, persistenceError(err, s.driver, "get", key)
	}
	return e.Value, true, nil
}

func (s *GormStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(s.driver, "set", key); err != nil {
		return err
	}
	e := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return persistenceError(err, s.driver, "set", key)
	}
	return nil
}

func (s *GormStore) Remove(ctx context.Context, key string) error {
	if err := validateKey(s.driver, "remove", key); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where(keyEquals(key)).Delete(&Entry{}).Error; err != nil {
		return persistenceError(err, s.driver, "remove", key)
	}
	return nil
}

// Close releases the database only when the store opened it itself.
func (s *GormStore) Close() error {
	if !s.ownsDB || s.closeFn == nil {
		return nil
	}
	return s.closeFn(s.db)
}

// keyEquals lets the dialect quote the reserved column name.
func keyEquals(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}
