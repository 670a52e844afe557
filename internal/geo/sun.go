package geo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/patrickmn/go-cache"
	"github.com/sj14/astral/pkg/astral"
)

const sunCache = "sun_times"

// SunEvents holds the sun event times of one day at one place.
type SunEvents struct {
	CivilDawn time.Time `json:"civilDawn"`
	Sunrise   time.Time `json:"sunrise"`
	Sunset    time.Time `json:"sunset"`
	CivilDusk time.Time `json:"civilDusk"`
}

// SunCalc computes sun events and caches them per place and calendar day.
type SunCalc struct {
	cache  *cache.Cache
	tz     *time.Location
	caches metrics.CacheRecorder
}

// NewSunCalc returns a calculator reporting times in tz; nil means local time.
func NewSunCalc(tz *time.Location, caches metrics.CacheRecorder) *SunCalc {
	if tz == nil {
		tz = time.Local
	}
	if caches == nil {
		caches = metrics.NopCacheRecorder{}
	}
	return &SunCalc{
		cache:  cache.New(48*time.Hour, time.Hour),
		tz:     tz,
		caches: caches,
	}
}

// SunTimes returns the sun events at lat, lon on the calendar day of date.
func (sc *SunCalc) SunTimes(lat, lon float64, date time.Time) (SunEvents, error) {
	day := date.In(sc.tz)
	key := day.Format(time.DateOnly) + "@" +
		strconv.FormatFloat(lat, 'f', 2, 64) + "," + strconv.FormatFloat(lon, 'f', 2, 64)

	if v, ok := sc.cache.Get(key); ok {
		sc.caches.RecordCacheLookup(sunCache, true)
		return v.(SunEvents), nil
	}
	sc.caches.RecordCacheLookup(sunCache, false)

	events, err := sc.calculate(astral.Observer{Latitude: lat, Longitude: lon}, day)
	if err != nil {
		return SunEvents{}, errors.New(err).
			Component(component).
			Category(errors.CategoryValidation).
			Context("date", day.Format(time.DateOnly)).
			Build()
	}
	sc.cache.SetDefault(key, events)
	return events, nil
}

func (sc *SunCalc) calculate(obs astral.Observer, day time.Time) (SunEvents, error) {
	dawn, err := astral.Dawn(obs, day, astral.DepressionCivil)
	if err != nil {
		return SunEvents{}, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}
	sunrise, err := astral.Sunrise(obs, day)
	if err != nil {
		return SunEvents{}, fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	sunset, err := astral.Sunset(obs, day)
	if err != nil {
		return SunEvents{}, fmt.Errorf("failed to calculate sunset: %w", err)
	}
	dusk, err := astral.Dusk(obs, day, astral.DepressionCivil)
	if err != nil {
		return SunEvents{}, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}
	return SunEvents{
		CivilDawn: dawn.In(sc.tz),
		Sunrise:   sunrise.In(sc.tz),
		Sunset:    sunset.In(sc.tz),
		CivilDusk: dusk.In(sc.tz),
	}, nil
}

func (sc *SunCalc) CacheStats() (name string, items int) {
	return sunCache, sc.cache.ItemCount()
}
