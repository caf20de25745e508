// Package service is the client side of the backend's authentication API.
//
// It performs login and token refresh against the backend, loads the current
// user, and answers "is there a usable session" from the credential store.
// It holds no session state of its own: the credential store is the only
// source of truth.
package service

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"procura/internal/auth/credentials"
	"procura/internal/platform/metrics"
	"procura/internal/platform/tracer"
)

const defaultTimeout = 15 * time.Second

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Paths are the backend endpoints used by the service, relative to the base URL.
type Paths struct {
	Login   string
	Refresh string
	Me      string
}

// DefaultPaths returns the backend's standard auth endpoints.
func DefaultPaths() Paths {
	return Paths{
		Login:   "/auth/login",
		Refresh: "/auth/refresh",
		Me:      "/users/me",
	}
}

type Service struct {
	store     credentials.Store
	baseURL   string
	client    HTTPDoer
	paths     Paths
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	refresh   singleflight.Group
}

type Option func(*Service)

func WithHTTPClient(client HTTPDoer) Option {
	return func(s *Service) {
		if client != nil {
			s.client = client
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithPaths overrides individual endpoints; empty fields keep their default.
func WithPaths(p Paths) Option {
	return func(s *Service) {
		if p.Login != "" {
			s.paths.Login = p.Login
		}
		if p.Refresh != "" {
			s.paths.Refresh = p.Refresh
		}
		if p.Me != "" {
			s.paths.Me = p.Me
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(s *Service) {
		s.userAgent = ua
	}
}

// New creates a Service backed by store that talks to the backend at baseURL.
func New(store credentials.Store, baseURL string, opts ...Option) *Service {
	s := &Service{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		paths:   DefaultPaths(),
		tracer:  tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Store returns the credential store the service reads and writes.
func (s *Service) Store() credentials.Store {
	return s.store
}
