package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// UnknownLocation is returned when the geocoder knows no place at a point.
const UnknownLocation = "Unknown location"

const (
	geocoderService = "geocoder"
	geocodeCache    = "reverse_geocode"
	opReverse       = "reverse_geocode"

	defaultGeocodeTimeout = 10 * time.Second
	defaultGeocodeTTL     = 24 * time.Hour
	maxGeocodeBody        = 256 << 10
)

// Address keys in order of preference for each part of the place name
var (
	cityKeys    = []string{"city", "town", "village", "municipality", "hamlet"}
	regionKeys  = []string{"state", "region", "county", "province"}
	countryKeys = []string{"country"}
)

// Geocoder resolves coordinates to a "city, region, country" place name
// through a Nominatim compatible reverse endpoint.
type Geocoder struct {
	endpoint  *url.URL
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	log       logger.Logger
	metrics   metrics.Recorder
	caches    metrics.CacheRecorder
}

// GeocoderOption configures a Geocoder.
type GeocoderOption func(*Geocoder)

// WithGeocoderHTTPClient replaces the HTTP client.
func WithGeocoderHTTPClient(c *http.Client) GeocoderOption {
	return func(g *Geocoder) { g.http = c }
}

// WithGeocoderLogger sets the logger.
func WithGeocoderLogger(l logger.Logger) GeocoderOption {
	return func(g *Geocoder) { g.log = l }
}

// WithGeocoderMetrics records lookups, durations and cache hits.
func WithGeocoderMetrics(r metrics.Recorder, c metrics.CacheRecorder) GeocoderOption {
	return func(g *Geocoder) {
		if r != nil {
			g.metrics = r
		}
		if c != nil {
			g.caches = c
		}
	}
}

// NewGeocoder creates a geocoder from settings. RateLimit is in requests per
// second; zero or less disables the limiter.
func NewGeocoder(s *conf.GeoSettings, opts ...GeocoderOption) (*Geocoder, error) {
	endpoint, err := url.Parse(s.GeocodeURL)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, errors.Newf("geocode url %q is not an absolute http url", s.GeocodeURL).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultGeocodeTimeout
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = defaultGeocodeTTL
	}
	limit := rate.Inf
	if s.RateLimit > 0 {
		limit = rate.Limit(s.RateLimit)
	}

	g := &Geocoder{
		endpoint:  endpoint,
		userAgent: s.UserAgent,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		cache:     cache.New(ttl, ttl*2),
		metrics:   metrics.NopRecorder{},
		caches:    metrics.NopCacheRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.Global().Module(component).Module(geocoderService)
	}
	return g, nil
}

// ReverseGeocode names the place at lat, lon. Points are cached at roughly
// ten metre resolution. A point the service cannot name yields
// UnknownLocation; a failed call is a remote service error.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (name string, err error) {
	if err := (collection.Location{Latitude: lat, Longitude: lon}).Validate(); err != nil {
		return "", err
	}

	key := strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
	if v, ok := g.cache.Get(key); ok {
		g.caches.RecordCacheLookup(geocodeCache, true)
		return v.(string), nil
	}
	g.caches.RecordCacheLookup(geocodeCache, false)

	start := time.Now()
	defer func() { g.observe(start, err) }()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", errors.New(err).Component(component).Category(errors.CategoryCancellation).Build()
	}

	name, err = g.fetch(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	g.cache.SetDefault(key, name)
	g.log.Debug("reverse geocoded",
		logger.String("key", key),
		logger.String("place", name),
		logger.Duration("duration", time.Since(start)))
	return name, nil
}

func (g *Geocoder) fetch(ctx context.Context, lat, lon float64) (string, error) {
	start := time.Now()
	u := *g.endpoint
	q := u.Query()
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", g.remoteError(err, u.String(), start)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.New(ctxErr).Component(component).Category(errors.CategoryCancellation).Build()
		}
		return "", g.remoteError(err, u.String(), start)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxGeocodeBody))
		return "", g.remoteError(fmt.Errorf("unexpected status %d", resp.StatusCode), u.String(), start)
	}

	obj, err := jason.NewObjectFromReader(io.LimitReader(resp.Body, maxGeocodeBody))
	if err != nil {
		return "", g.remoteError(fmt.Errorf("decode response: %w", err), u.String(), start)
	}
	address, err := obj.GetObject("address")
	if err != nil {
		// Nominatim answers points at sea with {"error": "Unable to geocode"}
		return UnknownLocation, nil
	}
	return placeName(address), nil
}

// placeName joins the first present key of each part.
func (g *Geocoder) remoteError(err error, endpoint string, start time.Time) error {
	return errors.New(fmt.Errorf("%s: %w", geocoderService, err)).
		Component(component).
		Category(errors.CategoryRemoteService).
		Context("service", geocoderService).
		NetworkContext(endpoint, g.http.Timeout).
		Timing("reverse_geocode", time.Since(start)).
		Build()
}

func placeName(address *jason.Object) string {
	parts := make([]string, 0, 3)
	for _, keys := range [][]string{cityKeys, regionKeys, countryKeys} {
		for _, k := range keys {
			if s, err := address.GetString(k); err == nil && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
				break
			}
		}
	}
	if len(parts) == 0 {
		return UnknownLocation
	}
	return strings.Join(parts, ", ")
}

func (g *Geocoder) observe(start time.Time, err error) {
	g.metrics.RecordDuration(opReverse, time.Since(start).Seconds())
	if err != nil {
		g.metrics.RecordOperation(opReverse, metrics.StatusError)
		errType := "unknown"
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			errType = ee.GetCategory()
		}
		g.metrics.RecordError(opReverse, errType)
		return
	}
	g.metrics.RecordOperation(opReverse, metrics.StatusSuccess)
}

// CacheStats names the place cache and counts its entries.
func (g *Geocoder) CacheStats() (name string, items int) {
	return geocodeCache, g.cache.ItemCount()
}
