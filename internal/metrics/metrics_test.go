package metrics_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveRequest("GET", 200, time.Now())
	m.ObserveRequest("GET", 200, time.Now())
	m.ObserveRequest("POST", 0, time.Now())
	m.IncrementRenewal(metrics.RenewalSuccess)
	m.IncrementRetry()

	require.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "0")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RenewalsTotal.WithLabelValues(metrics.RenewalSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNilClientIsSafe(t *testing.T) {
	var m *metrics.Client
	require.NotPanics(t, func() {
		m.ObserveRequest("GET", 500, time.Now())
		m.IncrementRenewal(metrics.RenewalFailure)
		m.IncrementRetry()
	})
}
