// Package geo provides the device position, reverse geocoding of a find and
// sun event times for the day it was made.
package geo

import (
	"context"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
)

const component = "geo"

// Fix is one position reading.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // metres
	Timestamp time.Time `json:"timestamp"`
}

// Location converts the fix into a record geotag.
func (f Fix) Location() *collection.Location {
	return &collection.Location{Latitude: f.Latitude, Longitude: f.Longitude}
}

// Locator reports where the caller currently is.
type Locator interface {
	CurrentLocation(ctx context.Context) (Fix, error)
}

// StaticLocator reports a configured position. A server has no GPS, so the
// operator sets where finds are logged from.
type StaticLocator struct {
	lat, lon, accuracy float64
	now                func() time.Time
}

// NewStaticLocator returns a locator for the position in s.
func NewStaticLocator(s *conf.GeoSettings) *StaticLocator {
	return &StaticLocator{lat: s.Latitude, lon: s.Longitude, accuracy: s.Accuracy, now: time.Now}
}

// CurrentLocation returns the configured position stamped with the current
// time. A position left at 0,0 counts as not configured.
func (l *StaticLocator) CurrentLocation(ctx context.Context) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, errors.New(err).Component(component).Category(errors.CategoryCancellation).Build()
	}
	if l.lat == 0 && l.lon == 0 {
		return Fix{}, errors.Newf("no position configured, set geo.latitude and geo.longitude").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return Fix{
		Latitude:  l.lat,
		Longitude: l.lon,
		Accuracy:  l.accuracy,
		Timestamp: l.now(),
	}, nil
}
