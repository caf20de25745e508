package portal

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"procura/internal/platform/health"
	"procura/pkg/platform/middleware/device"
	request "procura/pkg/platform/middleware/request"
)

const (
	maxBodyBytes   = 64 << 10
	requestTimeout = 30 * time.Second
)

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Logger   *slog.Logger
	Health   *health.Handler
	Gatherer prometheus.Gatherer
	Metrics  *request.Metrics
}

// NewRouter wires the portal routes with the standard middleware chain.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(device.Device)
	r.Use(request.Logger(logger))
	r.Use(request.LatencyMiddleware(cfg.Metrics, routePattern))
	r.Use(request.Timeout(requestTimeout))
	r.Use(request.BodyLimit(maxBodyBytes))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get(loginPath, h.HandleLoginView)
	r.Post(loginPath, h.HandleLogin)
	r.Post("/logout", h.HandleLogout)
	r.Get("/session", h.HandleSession)
	r.Get("/me", h.HandleMe)
	h.registerViews(r)

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
