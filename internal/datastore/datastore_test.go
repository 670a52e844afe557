package datastore

import (
	"path/filepath"
	"testing"

	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Main.DataDir = dir
	settings.Storage.Driver = conf.StorageSQLite
	settings.Storage.SQLite.Path = filepath.Join("db", "test.db")

	db, err := Open(settings, logger.NewConsoleLogger("datastore_test", logger.LogLevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, Close(db)) })

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
	assert.FileExists(t, filepath.Join(dir, "db", "test.db"))
}

func TestOpenRejectsNonSQLDriver(t *testing.T) {
	settings := &conf.Settings{}
	settings.Storage.Driver = conf.StorageFile

	_, err := Open(settings, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(&conf.MySQLSettings{
		Host: "db", Port: 3306, Username: "u", Password: "p", Database: "mycolog",
	})
	assert.Equal(t, "u:p@tcp(db:3306)/mycolog?charset=utf8mb4&parseTime=True&loc=UTC", dsn)
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
