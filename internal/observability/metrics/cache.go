package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheRecorder counts cache lookups.
type CacheRecorder interface {
	RecordCacheLookup(cache string, hit bool)
}

// CacheMetrics counts hits and misses of the in-process result caches
// (identification details, reverse geocoding, sun times).
type CacheMetrics struct {
	lookupsTotal *prometheus.CounterVec
	itemsGauge   *prometheus.GaugeVec
}

// NewCacheMetrics creates and registers the cache metrics.
func NewCacheMetrics(registry prometheus.Registerer) (*CacheMetrics, error) {
	m := &CacheMetrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_lookups_total",
				Help: "Total number of cache lookups",
			},
			[]string{"cache", "result"}, // result: hit, miss
		),
		itemsGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cache_items",
				Help: "Number of items currently held by a cache",
			},
			[]string{"cache"},
		),
	}
	for _, c := range []prometheus.Collector{m.lookupsTotal, m.itemsGauge} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register cache metrics: %w", err)
		}
	}
	return m, nil
}

// RecordCacheLookup implements CacheRecorder.
func (m *CacheMetrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupsTotal.WithLabelValues(cache, result).Inc()
}

// SetCacheItems records the current size of a cache.
func (m *CacheMetrics) SetCacheItems(cache string, n int) {
	m.itemsGauge.WithLabelValues(cache).Set(float64(n))
}

// NopCacheRecorder discards lookups.
type NopCacheRecorder struct{}

func (NopCacheRecorder) RecordCacheLookup(string, bool) {}
