package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementIssuersRegistered()
	m.IncrementCertificatesIssued()
	m.IncrementCertificatesIssued()
	m.IncrementCertificatesRevoked()
	m.IncrementEventPublishFailures()
	m.IncrementOperationError("revoke_certificate", "already_revoked")
	m.ObserveOperation("issue_certificate", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuersRegistered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CertificatesIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificatesRevoked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationErrors.WithLabelValues("revoke_certificate", "already_revoked")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
