package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	LabelsProcessed  *prometheus.CounterVec
	BatchesFinished  *prometheus.CounterVec
	FulfillRequests  *prometheus.CounterVec
	FulfillDuration  *prometheus.HistogramVec
	ClaimConflicts   prometheus.Counter
	WebhookDelivered *prometheus.CounterVec
}

// NewMetrics creates metrics registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on the given registerer. Tests
// pass a fresh registry to avoid duplicate registration across cases.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LabelsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchmaker_labels_processed_total",
				Help: "Shipment labels driven to a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
		BatchesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchmaker_batches_finished_total",
				Help: "Batches driven to a terminal status",
			},
			[]string{"status"},
		),
		FulfillRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchmaker_fulfill_requests_total",
				Help: "Requests to the fulfillment platform by operation and status",
			},
			[]string{"operation", "status"},
		),
		FulfillDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchmaker_fulfill_request_duration_seconds",
				Help:    "Fulfillment platform request duration by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ClaimConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "batchmaker_claim_conflicts_total",
				Help: "Box claims lost to a concurrent claimant",
			},
		),
		WebhookDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchmaker_webhook_deliveries_total",
				Help: "Batch webhook delivery attempts by result",
			},
			[]string{"result"},
		),
	}
}

// RecordFulfillRequest records one fulfillment platform call.
func (m *Metrics) RecordFulfillRequest(operation, status string, seconds float64) {
	m.FulfillRequests.WithLabelValues(operation, status).Inc()
	m.FulfillDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordLabelOutcome records a label reaching a terminal state.
func (m *Metrics) RecordLabelOutcome(outcome string) {
	m.LabelsProcessed.WithLabelValues(outcome).Inc()
}
