// config.go: settings struct and functions to load the mycolog configuration.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Storage drivers for the key-value primitive
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Collection backends
const (
	BackendBlob = "blob" // whole collection as one JSON value
	BackendSQL  = "sql"  // one row per record
)

// Image store drivers
const (
	ImagesFS     = "fs"
	ImagesMemory = "memory"
	ImagesS3     = "s3"
)

// MainSettings holds application identity and the data directory
type MainSettings struct {
	Name    string // instance name, used as MQTT client id
	DataDir string // root for file storage, sqlite database and images
}

// MySQLSettings contains MySQL connection parameters
type MySQLSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// StorageSettings selects where the collection lives
type StorageSettings struct {
	Driver  string // file, sqlite, mysql or memory
	Backend string // blob or sql
	SQLite  struct {
		Path string // relative paths resolve against main.datadir
	}
	MySQL MySQLSettings
}

// IdentifySettings configures the remote identification service
type IdentifySettings struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration // details cache lifetime
}

// GeoSettings configures the location provider and reverse geocoder
type GeoSettings struct {
	Latitude   float64 // static position reported as the current location
	Longitude  float64
	Accuracy   float64 // metres
	GeocodeURL string  // Nominatim compatible reverse endpoint
	UserAgent  string
	RateLimit  float64 // requests per second
	CacheTTL   time.Duration
	Timeout    time.Duration
}

// S3Settings contains S3 or MinIO parameters for the image store
type S3Settings struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// ImageSettings configures photo storage
type ImageSettings struct {
	Driver  string // fs, memory or s3
	Dir     string // fs driver directory, relative to main.datadir
	Quality int    // JPEG quality 1-100
	S3      S3Settings
}

// ServerSettings configures the HTTP API
type ServerSettings struct {
	Listen string
	Debug  bool
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool
	Path    string
}

// MQTTSettings configures collection event publishing
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retain   bool
}

// SentrySettings configures opt-in error telemetry
type SentrySettings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

// Settings is the root of the configuration tree
type Settings struct {
	Debug bool

	Main     MainSettings
	Storage  StorageSettings
	Identify IdentifySettings
	Geo      GeoSettings
	Images   ImageSettings
	Server   ServerSettings
	Metrics  MetricsSettings
	MQTT     MQTTSettings
	Sentry   SentrySettings
	Logging  logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a validated Settings.
func Load() (*Settings, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return nil, err
	}
	return loadFrom(paths)
}

func loadFrom(configPaths []string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configPaths); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets defaults, wires MYCOLOG_ environment overrides and reads config.yaml.
func initViper(configPaths []string) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("MYCOLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return createDefaultConfig(configPaths)
	}
	return fmt.Errorf("fatal error reading config file: %w", err)
}

// createDefaultConfig writes the embedded config.yaml to the first config path and reads it back.
func createDefaultConfig(configPaths []string) error {
	if len(configPaths) == 0 {
		return errors.NewStd("no config paths available")
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the settings from the last successful Load, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DataPath resolves p against the data directory unless it is already absolute.
func (s *Settings) DataPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GetBasePath(s.Main.DataDir), p)
}
