package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the session and request layers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BackendRequests        *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	TokenRefreshes         *prometheus.CounterVec
	SessionInvalidations   *prometheus.CounterVec
	Logins                 *prometheus.CounterVec
	CacheLookups           *prometheus.CounterVec
	CacheEntries           prometheus.Gauge
	BreakerOpen            prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "procura_backend_requests_total",
			Help: "Total number of backend requests, by method and status class",
		}, []string{"method", "status"}),
		BackendRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procura_backend_request_duration_ms",
			Help:    "Duration of backend requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"method"}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "procura_token_refreshes_total",
			Help: "Total number of access token refresh attempts, by outcome",
		}, []string{"outcome"}),
		SessionInvalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "procura_session_invalidations_total",
			Help: "Total number of sessions cleared, by reason",
		}, []string{"reason"}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "procura_logins_total",
			Help: "Total number of login attempts, by outcome",
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "procura_cache_lookups_total",
			Help: "Total number of response cache lookups, by result",
		}, []string{"result"}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "procura_cache_entries",
			Help: "Current number of cached responses",
		}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "procura_backend_breaker_open",
			Help: "1 while the backend circuit breaker is open",
		}),
	}
}

// ObserveRequest records one backend call. status 0 means no response arrived.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequests.WithLabelValues(method, statusClass(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(method).Observe(float64(d.Milliseconds()))
}

// IncrementRefresh records a refresh attempt outcome (success, rejected, error, shared).
func (m *Metrics) IncrementRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// IncrementInvalidation records a cleared session.
func (m *Metrics) IncrementInvalidation(reason string) {
	if m == nil {
		return
	}
	m.SessionInvalidations.WithLabelValues(reason).Inc()
}

// IncrementLogin records a login attempt outcome.
func (m *Metrics) IncrementLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetCacheEntries reports the cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// SetBreakerOpen reports the breaker state.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
