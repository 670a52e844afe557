package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics counts and times the operations of one component. The
// collection store, the identification client, the geocoder and the image
// store each get their own instance, distinguished by metric name prefix.
type OperationMetrics struct {
	component string

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

// NewOperationMetrics creates and registers metrics named <component>_operations_total,
// <component>_operation_duration_seconds and <component>_errors_total.
func NewOperationMetrics(registry prometheus.Registerer, component string) (*OperationMetrics, error) {
	m := &OperationMetrics{component: component}

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: component + "_operations_total",
			Help: fmt.Sprintf("Total number of %s operations", component),
		},
		[]string{"operation", "status"}, // status: success, error
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    component + "_operation_duration_seconds",
			Help:    fmt.Sprintf("Time taken for %s operations", component),
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor4, BucketCount10), // 0.1ms to ~26s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: component + "_errors_total",
			Help: fmt.Sprintf("Total number of %s errors by category", component),
		},
		[]string{"operation", "error_type"},
	)

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register %s metrics: %w", component, err)
	}
	return m, nil
}

// RecordOperation implements Recorder.
func (m *OperationMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *OperationMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *OperationMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *OperationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *OperationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
}
