// Package datastore opens the gorm database shared by the SQL-backed stores.
package datastore

import (
	"time"

	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"gorm.io/gorm"
)

// slowQueryThreshold marks statements logged at WARN by the gorm adapter
const slowQueryThreshold = 200 * time.Millisecond

// Open connects to the database selected by settings.Storage.Driver.
// Only sqlite and mysql are SQL drivers; anything else is a configuration error.
func Open(settings *conf.Settings, log logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	cfg := &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	}

	switch settings.Storage.Driver {
	case conf.StorageSQLite:
		return openSQLite(settings.DataPath(settings.Storage.SQLite.Path), cfg, log)
	case conf.StorageMySQL:
		return openMySQL(&settings.Storage.MySQL, cfg, log)
	default:
		return nil, errors.Newf("storage driver %q is not an SQL driver", settings.Storage.Driver).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "get_sql_db")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

// dbError creates a properly categorized database error with context
func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}
