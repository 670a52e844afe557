package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates each test from the global viper state
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()

	settings, err := loadFrom([]string{dir})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, statErr, "default config should be written")

	assert.Equal(t, StorageFile, settings.Storage.Driver)
	assert.Equal(t, BackendBlob, settings.Storage.Backend)
	assert.Equal(t, 70, settings.Images.Quality)
	assert.Equal(t, 30*time.Second, settings.Identify.Timeout)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.Same(t, settings, GetSettings())
}

func TestLoadReadsExistingConfig(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	yaml := `
storage:
  driver: sqlite
  backend: sql
identify:
  baseurl: http://localhost:9000
  timeout: 5s
geo:
  latitude: 60.17
  longitude: 24.94
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	settings, err := loadFrom([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, settings.Storage.Driver)
	assert.Equal(t, BackendSQL, settings.Storage.Backend)
	assert.Equal(t, "http://localhost:9000", settings.Identify.BaseURL)
	assert.Equal(t, 5*time.Second, settings.Identify.Timeout)
	assert.InDelta(t, 60.17, settings.Geo.Latitude, 1e-9)
	// untouched keys keep defaults
	assert.Equal(t, ImagesFS, settings.Images.Driver)
}

func TestEnvironmentOverride(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("MYCOLOG_STORAGE_DRIVER", "memory")

	settings, err := loadFrom([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, settings.Storage.Driver)
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{}
		s.Storage.Driver = StorageFile
		s.Storage.Backend = BackendBlob
		s.Identify.BaseURL = "https://id.example.com"
		s.Images.Driver = ImagesFS
		s.Images.Quality = 70
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		ok     bool
	}{
		{"valid", func(*Settings) {}, true},
		{"unknown driver", func(s *Settings) { s.Storage.Driver = "redis" }, false},
		{"sql backend on file driver", func(s *Settings) { s.Storage.Backend = BackendSQL }, false},
		{"sql backend on sqlite", func(s *Settings) { s.Storage.Driver = StorageSQLite; s.Storage.Backend = BackendSQL }, true},
		{"relative identify url", func(s *Settings) { s.Identify.BaseURL = "/v1" }, false},
		{"latitude out of range", func(s *Settings) { s.Geo.Latitude = 91 }, false},
		{"s3 without bucket", func(s *Settings) { s.Images.Driver = ImagesS3 }, false},
		{"quality too high", func(s *Settings) { s.Images.Quality = 101 }, false},
		{"mqtt without broker", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Topic = "t" }, false},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestDataPath(t *testing.T) {
	dir := t.TempDir()
	s := &Settings{Main: MainSettings{DataDir: dir}}

	assert.Equal(t, filepath.Join(dir, "mycolog.db"), s.DataPath("mycolog.db"))
	assert.Equal(t, "/abs/file.db", s.DataPath("/abs/file.db"))
	assert.Empty(t, s.DataPath(""))
}
