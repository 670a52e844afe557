// Package app assembles the mycolog components from settings. The serve
// command and the one-shot CLI commands share the same wiring.
package app

import (
	"context"
	"time"

	"github.com/mycolog/mycolog/internal/collection"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/geo"
	"github.com/mycolog/mycolog/internal/identify"
	"github.com/mycolog/mycolog/internal/imagestore"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
	"github.com/mycolog/mycolog/internal/observability"
	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/mycolog/mycolog/internal/session"
)

// App holds the opened components. Identify and Geocoder are nil when their
// settings are incomplete; callers report them as unavailable.
type App struct {
	Settings *conf.Settings
	Metrics  *observability.Metrics

	KV       kvstore.Store
	Store    collection.Store
	Sessions *session.Manager
	Images   *imagestore.Store
	Identify *identify.Client
	Locator  geo.Locator
	Geocoder *geo.Geocoder
	Sun      *geo.SunCalc

	log logger.Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	metrics *observability.Metrics
	log     logger.Logger
}

// WithMetrics instruments every component with m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *openOptions) { o.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(o *openOptions) { o.log = l }
}

// Open builds every component. On failure the components opened so far are
// closed again.
func Open(ctx context.Context, settings *conf.Settings, opts ...Option) (a *App, err error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Global().Module("app")
	}

	opened := &App{Settings: settings, Metrics: o.metrics, log: o.log}
	a = opened
	defer func() {
		if err != nil {
			_ = opened.Close()
		}
	}()

	if a.KV, err = kvstore.Open(settings, o.log.Module("kvstore")); err != nil {
		return nil, err
	}

	a.Sessions = session.NewManager(a.KV, o.log.Module("session"))
	if _, err = a.Sessions.Load(ctx); err != nil {
		return nil, err
	}

	storeOpts := []collection.Option{collection.WithLogger(o.log.Module("collection"))}
	if o.metrics != nil {
		storeOpts = append(storeOpts, collection.WithMetrics(o.metrics.Collection))
	}
	if a.Store, err = collection.Open(settings, a.KV, storeOpts...); err != nil {
		return nil, err
	}

	imageOpts := []imagestore.Option{imagestore.WithLogger(o.log.Module("imagestore"))}
	if o.metrics != nil {
		imageOpts = append(imageOpts, imagestore.WithMetrics(o.metrics.Images))
	}
	if a.Images, err = imagestore.Open(ctx, settings, a.KV, imageOpts...); err != nil {
		return nil, err
	}

	var (
		identifyMetrics metrics.Recorder      = metrics.NopRecorder{}
		geoMetrics      metrics.Recorder      = metrics.NopRecorder{}
		caches          metrics.CacheRecorder = metrics.NopCacheRecorder{}
	)
	if o.metrics != nil {
		identifyMetrics, geoMetrics, caches = o.metrics.Identify, o.metrics.Geo, o.metrics.Cache
	}

	if settings.Identify.BaseURL != "" {
		a.Identify, err = identify.New(&settings.Identify,
			identify.WithLogger(o.log.Module("identify")),
			identify.WithMetrics(identifyMetrics, caches))
		if err != nil {
			return nil, err
		}
	}

	if settings.Geo.Latitude != 0 || settings.Geo.Longitude != 0 {
		a.Locator = geo.NewStaticLocator(&settings.Geo)
	}
	if settings.Geo.GeocodeURL != "" {
		a.Geocoder, err = geo.NewGeocoder(&settings.Geo,
			geo.WithGeocoderLogger(o.log.Module("geocoder")),
			geo.WithGeocoderMetrics(geoMetrics, caches))
		if err != nil {
			return nil, err
		}
	}
	a.Sun = geo.NewSunCalc(timezone(settings, o.log), caches)

	o.log.Debug("components opened",
		logger.String("storage", a.KV.Driver()),
		logger.String("backend", settings.Storage.Backend),
		logger.String("images", a.Images.Driver()),
		logger.Bool("identify", a.Identify != nil),
		logger.Bool("locator", a.Locator != nil),
		logger.Bool("geocoder", a.Geocoder != nil))
	return a, nil
}

// timezone follows the logging timezone so that sun times and log lines agree.
func timezone(settings *conf.Settings, log logger.Logger) *time.Location {
	switch settings.Logging.Timezone {
	case "", "Local":
		return time.Local
	}
	tz, err := time.LoadLocation(settings.Logging.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using local time",
			logger.String("timezone", settings.Logging.Timezone), logger.Error(err))
		return time.Local
	}
	return tz
}

// DiscardImage removes a photo whose record could not be saved.
func (a *App) DiscardImage(ctx context.Context, uri string) {
	if err := a.Images.Delete(context.WithoutCancel(ctx), uri); err != nil {
		a.log.Warn("failed to remove unsaved image", logger.String("uri", uri), logger.Error(err))
	}
}

// Context attaches the signed-in user to ctx.
func (a *App) Context(ctx context.Context) context.Context {
	return a.Sessions.Context(ctx)
}

// RequireIdentify returns the identification client or a configuration error.
func (a *App) RequireIdentify() (*identify.Client, error) {
	if a.Identify == nil {
		return nil, errors.Newf("identification service is not configured (identify.baseurl)").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return a.Identify, nil
}

type cacheStats interface {
	CacheStats() (name string, items int)
}

// ReportCacheSizes publishes the size of every result cache until ctx ends.
func (a *App) ReportCacheSizes(ctx context.Context, every time.Duration) error {
	if a.Metrics == nil {
		return nil
	}
	var sources []cacheStats
	if a.Identify != nil {
		sources = append(sources, a.Identify)
	}
	if a.Geocoder != nil {
		sources = append(sources, a.Geocoder)
	}
	sources = append(sources, a.Sun)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		for _, src := range sources {
			name, n := src.CacheStats()
			a.Metrics.Cache.SetCacheItems(name, n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases the store and the key-value backend, in that order.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Do opens the components, runs fn with a session-scoped context and closes
// everything again. One-shot CLI commands use it.
func Do(ctx context.Context, settings *conf.Settings, fn func(ctx context.Context, a *App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := Open(ctx, settings)
	if err != nil {
		return err
	}
	runErr := fn(a.Context(ctx), a)
	if err := a.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
