package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Renewal results recorded on RenewalsTotal.
const (
	RenewalSuccess    = "success"
	RenewalFailure    = "failure"
	RenewalSuperseded = "superseded"
	RenewalDiscarded  = "discarded"
)

type Client struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RenewalsTotal   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
}

// New registers the client collectors on reg. Passing nil leaves the
// collectors unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Client {
	factory := promauto.With(reg)
	return &Client{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantclient_requests_total",
			Help: "Total number of API requests by method and final status code (0 = network error)",
		}, []string{"method", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantclient_request_duration_seconds",
			Help:    "Duration of API requests including any renewal and retry",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		RenewalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantclient_session_renewals_total",
			Help: "Session renewal outcomes",
		}, []string{"result"}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tenantclient_request_retries_total",
			Help: "Requests re-issued after a session renewal",
		}),
	}
}

func (m *Client) ObserveRequest(method string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (m *Client) IncrementRenewal(result string) {
	if m == nil {
		return
	}
	m.RenewalsTotal.WithLabelValues(result).Inc()
}

func (m *Client) IncrementRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}
