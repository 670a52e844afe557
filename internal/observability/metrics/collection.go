package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CollectionMetrics adds collection-wide gauges to the store's operation metrics.
type CollectionMetrics struct {
	*OperationMetrics

	recordsGauge  *prometheus.GaugeVec
	revisionGauge prometheus.Gauge
}

// NewCollectionMetrics creates and registers the collection metrics.
func NewCollectionMetrics(registry prometheus.Registerer) (*CollectionMetrics, error) {
	ops, err := NewOperationMetrics(registry, "collection")
	if err != nil {
		return nil, err
	}
	m := &CollectionMetrics{OperationMetrics: ops}

	m.recordsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collection_records",
			Help: "Number of records in the collection by edibility class",
		},
		[]string{"edibility"},
	)
	m.revisionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collection_revision",
		Help: "Revision of the last committed collection change",
	})

	for _, c := range []prometheus.Collector{m.recordsGauge, m.revisionGauge} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collection metrics: %w", err)
		}
	}
	return m, nil
}

// SetRecordCounts replaces the per-edibility record gauges.
func (m *CollectionMetrics) SetRecordCounts(counts map[string]int) {
	m.recordsGauge.Reset()
	for edibility, n := range counts {
		m.recordsGauge.WithLabelValues(edibility).Set(float64(n))
	}
}

// SetRevision records the latest committed revision.
func (m *CollectionMetrics) SetRevision(rev uint64) {
	m.revisionGauge.Set(float64(rev))
}

// Revision returns the current value of the revision gauge.
func (m *CollectionMetrics) Revision() float64 {
	metric := &dto.Metric{}
	if err := m.revisionGauge.Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
