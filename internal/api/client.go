// Package api is the authorized request layer between the portal and the
// procurement backend.
//
// Every call attaches the stored bearer token. A 401 triggers one shared token
// refresh and a single retry; a terminal 401, a 403, or a malformed stored
// token is reported to the SessionInvalidator so the session ends everywhere.
// Transport failures never end the session.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"procura/internal/platform/metrics"
	"procura/internal/platform/tracer"
	"procura/pkg/platform/circuit"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultRefreshSkew = 30 * time.Second
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource reads the stored access token; "" means none.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher obtains a new access token. Implementations share one in-flight
// refresh between concurrent callers and clear credentials when the refresh
// token is rejected.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (string, error)
}

// SessionInvalidator is told when the backend or a local check has proven the
// stored credentials unusable. token is the access token that failed; a
// session that has since replaced it must survive the call.
type SessionInvalidator interface {
	InvalidateSession(ctx context.Context, token string, cause error)
}

type Client struct {
	baseURL     string
	tokens      TokenSource
	client      HTTPDoer
	refresher   Refresher
	autoRefresh bool
	refreshSkew time.Duration
	breaker     *circuit.Breaker
	invalidator SessionInvalidator
	userAgent   string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	now         func() time.Time
}

type Option func(*Client)

func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRefresher enables refresh-and-retry on 401 through r.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithAutoRefresh toggles refresh-and-retry. It is on by default once a
// Refresher is configured.
func WithAutoRefresh(enabled bool) Option {
	return func(c *Client) {
		c.autoRefresh = enabled
	}
}

// WithRefreshSkew sets how close to its expiry a JWT access token is
// refreshed before use. Zero disables proactive refresh.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.refreshSkew = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithSessionInvalidator(inv SessionInvalidator) Option {
	return func(c *Client) {
		c.invalidator = inv
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithClock overrides the time source used for proactive refresh.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Client for the backend at baseURL reading tokens from tokens.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokens:      tokens,
		client:      &http.Client{Timeout: defaultTimeout},
		autoRefresh: true,
		refreshSkew: defaultRefreshSkew,
		tracer:      tracer.NewNoop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}
