// Package observability wires the Prometheus collectors of every mycolog
// component into one registry and serves it. Error telemetry lives in the
// telemetry package.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/mycolog/mycolog/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Collection *metrics.CollectionMetrics
	Identify   *metrics.OperationMetrics
	Geo        *metrics.OperationMetrics
	Images     *metrics.OperationMetrics
	Cache      *metrics.CacheMetrics
	HTTP       *metrics.HTTPMetrics
	MQTT       *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collection, err := metrics.NewCollectionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection metrics: %w", err)
	}
	identify, err := metrics.NewOperationMetrics(registry, "identify")
	if err != nil {
		return nil, fmt.Errorf("failed to create identify metrics: %w", err)
	}
	geo, err := metrics.NewOperationMetrics(registry, "geo")
	if err != nil {
		return nil, fmt.Errorf("failed to create geo metrics: %w", err)
	}
	images, err := metrics.NewOperationMetrics(registry, "imagestore")
	if err != nil {
		return nil, fmt.Errorf("failed to create imagestore metrics: %w", err)
	}
	cache, err := metrics.NewCacheMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Collection: collection,
		Identify:   identify,
		Geo:        geo,
		Images:     images,
		Cache:      cache,
		HTTP:       httpMetrics,
		MQTT:       mqttMetrics,
	}, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
