package request

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the portal's per-route HTTP metrics.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	Responses       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procura_portal_endpoint_latency_seconds",
			Help:    "Latency of portal endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "procura_portal_responses_total",
			Help: "Portal responses by route and status class",
		}, []string{"endpoint", "class"}),
	}
}

// ObserveResponse records one handled request.
func (m *Metrics) ObserveResponse(endpoint string, status int, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
	m.Responses.WithLabelValues(endpoint, statusClass(status)).Inc()
}

// statusClass folds a status code into "2xx", "3xx" and so on.
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
