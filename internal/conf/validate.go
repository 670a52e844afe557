// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mycolog/mycolog/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. All problems are
// reported at once, wrapped in a configuration-category error.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		validateStorageSettings,
		validateIdentifySettings,
		validateGeoSettings,
		validateImageSettings,
		validateMQTTSettings,
		validateSentrySettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateStorageSettings(s *Settings) error {
	switch s.Storage.Driver {
	case StorageFile, StorageSQLite, StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("storage.driver %q must be one of file, sqlite, mysql, memory", s.Storage.Driver)
	}
	switch s.Storage.Backend {
	case BackendBlob:
	case BackendSQL:
		if s.Storage.Driver != StorageSQLite && s.Storage.Driver != StorageMySQL {
			return fmt.Errorf("storage.backend sql requires the sqlite or mysql driver, got %q", s.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.backend %q must be blob or sql", s.Storage.Backend)
	}
	if s.Storage.Driver == StorageMySQL && (s.Storage.MySQL.Host == "" || s.Storage.MySQL.Database == "") {
		return errors.NewStd("storage.mysql requires host and database")
	}
	return nil
}

func validateIdentifySettings(s *Settings) error {
	if err := validateHTTPURL("identify.baseurl", s.Identify.BaseURL); err != nil {
		return err
	}
	if s.Identify.Timeout < 0 {
		return errors.NewStd("identify.timeout cannot be negative")
	}
	return nil
}

func validateGeoSettings(s *Settings) error {
	if s.Geo.Latitude < -90 || s.Geo.Latitude > 90 {
		return fmt.Errorf("geo.latitude %v out of range [-90, 90]", s.Geo.Latitude)
	}
	if s.Geo.Longitude < -180 || s.Geo.Longitude > 180 {
		return fmt.Errorf("geo.longitude %v out of range [-180, 180]", s.Geo.Longitude)
	}
	if s.Geo.GeocodeURL != "" {
		if err := validateHTTPURL("geo.geocodeurl", s.Geo.GeocodeURL); err != nil {
			return err
		}
	}
	if s.Geo.RateLimit < 0 {
		return errors.NewStd("geo.ratelimit cannot be negative")
	}
	return nil
}

func validateImageSettings(s *Settings) error {
	switch s.Images.Driver {
	case ImagesFS, ImagesMemory:
	case ImagesS3:
		if s.Images.S3.Bucket == "" {
			return errors.NewStd("images.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("images.driver %q must be one of fs, memory, s3", s.Images.Driver)
	}
	if s.Images.Quality < 1 || s.Images.Quality > 100 {
		return fmt.Errorf("images.quality %d must be between 1 and 100", s.Images.Quality)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return errors.NewStd("mqtt.broker is required when mqtt is enabled")
	}
	if strings.TrimSpace(s.MQTT.Topic) == "" {
		return errors.NewStd("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return errors.NewStd("sentry.dsn is required when sentry is enabled")
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", key, raw)
	}
	return nil
}
