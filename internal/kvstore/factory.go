package kvstore

import (
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/datastore"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"gorm.io/gorm"
)

// Open builds the store selected by settings.Storage.Driver. For sqlite and
// mysql the returned store owns the database connection; callers that need the
// same connection (the per-record collection backend) get it from DB.
func Open(settings *conf.Settings, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Global().Module("kvstore")
	}

	switch settings.Storage.Driver {
	case conf.StorageFile, "":
		dir := settings.DataPath("kv")
		log.Debug("using file key-value store", logger.String("dir", dir))
		return NewFile(dir)
	case conf.StorageMemory:
		log.Warn("using in-memory key-value store, data will not survive a restart")
		return NewMemory(), nil
	case conf.StorageSQLite, conf.StorageMySQL:
		db, err := datastore.Open(settings, log.Module("datastore"))
		if err != nil {
			return nil, err
		}
		s, err := NewGorm(db)
		if err != nil {
			_ = datastore.Close(db)
			return nil, err
		}
		s.ownsDB = true
		s.closeFn = datastore.Close
		log.Debug("using SQL key-value store", logger.String("driver", s.Driver()))
		return s, nil
	default:
		return nil, errors.Newf("unknown storage driver %q", settings.Storage.Driver).
			Component("kvstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// DB returns the gorm handle behind a SQL store, or nil for other drivers.
func DB(s Store) *gorm.DB {
	if g, ok := s.(*GormStore); ok {
		return g.db
	}
	return nil
}
