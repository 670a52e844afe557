// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
//
// Nothing is sent unless sentry.enabled is set in the configuration. Once
// initialized, every EnhancedError built outside the validation and
// not-found categories is reported through the errors package.
package telemetry

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mycolog/mycolog/internal/buildinfo"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/logger"
)

const component = "telemetry"

var initialized atomic.Bool

// sensitiveContexts are dropped from every event. Error context keys such as
// latitude or notes can carry details of where a user collects.
var sensitiveContexts = []string{
	"device", "os", "runtime",
	"latitude", "longitude", "accuracy", "notes", "user_id", "image_uri",
}

var sensitiveTags = []string{"server_name", "hostname"}

// Option adjusts the Sentry client options before Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, for tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// WithEnvironment sets the environment tag, "production" by default.
func WithEnvironment(env string) Option {
	return func(o *sentry.ClientOptions) { o.Environment = env }
}

// InitSentry initializes Sentry when settings.Sentry.Enabled is set and
// installs the errors package reporter. It is a no-op otherwise.
func InitSentry(settings *conf.Settings, info buildinfo.BuildInfo, opts ...Option) error {
	log := logger.Global().Module(component)
	if !settings.Sentry.Enabled {
		log.Info("error telemetry disabled (opt-in required)")
		return nil
	}
	if info == nil {
		info = (*buildinfo.Context)(nil)
	}

	options := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Debug:            settings.Sentry.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "mycolog@" + info.GetVersion(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Dsn == "" && options.Transport == nil {
		return errors.Newf("sentry.dsn is required when telemetry is enabled").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := sentry.Init(options); err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", info.GetSystemID())
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetContext("application", map[string]any{
			"name":       "mycolog",
			"version":    info.GetVersion(),
			"build_date": info.GetBuildDate(),
			"go_version": runtime.Version(),
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	log.Info("error telemetry enabled",
		logger.String("release", options.Release),
		logger.String("environment", options.Environment))
	return nil
}

// Enabled reports whether InitSentry configured a client.
func Enabled() bool { return initialized.Load() }

// Flush waits up to timeout for queued events. It returns false on timeout.
func Flush(timeout time.Duration) bool {
	if !initialized.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown detaches the errors reporter and flushes pending events.
func Shutdown(timeout time.Duration) {
	if !initialized.Swap(false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	if !sentry.Flush(timeout) {
		logger.Global().Module(component).Warn("telemetry flush timed out",
			logger.Duration("timeout", timeout))
	}
}

// applyPrivacyFilters strips identifying data from an outgoing event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	for _, key := range sensitiveContexts {
		delete(event.Contexts, key)
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	for _, tag := range sensitiveTags {
		delete(event.Tags, tag)
	}
	return event
}
