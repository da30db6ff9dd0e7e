package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the registry module.
// Tracks lifecycle counts, per-operation failures and durations.
type Metrics struct {
	IssuersRegistered    prometheus.Counter
	CertificatesIssued   prometheus.Counter
	CertificatesRevoked  prometheus.Counter
	OperationErrors      *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	EventPublishFailures prometheus.Counter
}

// New registers the registry metrics on the default Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the registry metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssuersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_issuers_registered_total",
			Help: "Total number of issuers registered",
		}),
		CertificatesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		CertificatesRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_certificates_revoked_total",
			Help: "Total number of certificates revoked",
		}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certreg_operation_errors_total",
			Help: "Registry operation failures by operation and error reason",
		}, []string{"operation", "reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certreg_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		EventPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certreg_event_publish_failures_total",
			Help: "Events that could not be delivered after their mutation committed",
		}),
	}
}

func (m *Metrics) IncrementIssuersRegistered() {
	m.IssuersRegistered.Inc()
}

func (m *Metrics) IncrementCertificatesIssued() {
	m.CertificatesIssued.Inc()
}

func (m *Metrics) IncrementCertificatesRevoked() {
	m.CertificatesRevoked.Inc()
}

// IncrementOperationError records a failed operation under its error reason.
func (m *Metrics) IncrementOperationError(operation, reason string) {
	m.OperationErrors.WithLabelValues(operation, reason).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementEventPublishFailures() {
	m.EventPublishFailures.Inc()
}
