package datastore

import (
	"os"
	"path/filepath"

	"github.com/mycolog/mycolog/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite opens (creating if needed) a sqlite database file at path.
// Exposed for tests that want a throwaway database in t.TempDir().
func OpenSQLite(path string, log logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return openSQLite(path, &gorm.Config{Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold)}, log)
}

func openSQLite(path string, cfg *gorm.Config, log logger.Logger) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, dbError(err, "create_sqlite_dir", "path", dir)
		}
	}

	// WAL lets readers proceed while the single writer commits.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		log.Error("failed to open SQLite database", logger.String("path", path), logger.Error(err))
		return nil, dbError(err, "open_sqlite", "path", path)
	}

	log.Debug("SQLite database opened", logger.String("path", path))
	return db, nil
}
