// Package app assembles the session core from configuration. The portal and
// the CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"procura/internal/api"
	"procura/internal/auth/credentials"
	"procura/internal/auth/service"
	"procura/internal/auth/state"
	"procura/internal/platform/config"
	"procura/internal/platform/metrics"
	redisclient "procura/internal/platform/redis"
	"procura/internal/platform/tracer"
	"procura/internal/querycache"
	"procura/pkg/platform/circuit"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    credentials.Store
	Auth     *service.Service
	Cache    *querycache.Cache
	State    *state.State
	Client   *api.Client
	Breaker  *circuit.Breaker
	Redis    *redisclient.Client
}

// New builds every component from cfg. The state is not started.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &App{Config: cfg, Logger: logger, Registry: reg, Metrics: m}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Backend.Timeout}
	tr := tracer.NewOTel()

	a.Auth = service.New(a.Store, cfg.Backend.BaseURL,
		service.WithHTTPClient(httpClient),
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithTracer(tr),
		service.WithUserAgent(cfg.Backend.UserAgent),
	)
	a.Cache = querycache.New(
		querycache.WithStaleTime(cfg.Session.StaleTime),
		querycache.WithMetrics(m),
	)

	stateOpts := []state.Option{
		state.WithLogger(logger),
		state.WithUserLoadTimeout(cfg.Session.UserLoadTimeout),
	}
	if notifier, ok := a.Store.(credentials.Notifier); ok {
		stateOpts = append(stateOpts, state.WithNotifier(notifier))
	}
	a.State = state.New(a.Auth, a.Cache, stateOpts...)

	a.Breaker = circuit.New("backend",
		circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuit.WithCoolDown(cfg.Breaker.CoolDown),
	)
	a.Client = api.New(cfg.Backend.BaseURL, a.Store,
		api.WithHTTPClient(httpClient),
		api.WithRefresher(a.Auth),
		api.WithAutoRefresh(cfg.Session.AutoRefresh),
		api.WithRefreshSkew(cfg.Session.RefreshSkew),
		api.WithBreaker(a.Breaker),
		api.WithSessionInvalidator(a.State),
		api.WithLogger(logger),
		api.WithMetrics(m),
		api.WithTracer(tr),
		api.WithUserAgent(cfg.Backend.UserAgent),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Store.Kind {
	case config.StoreMemory:
		a.Store = credentials.NewMemoryStore()
	case config.StoreFile:
		store, err := credentials.NewFileStore(cfg.Store.Dir, cfg.Store.Profile,
			credentials.WithPassphrase(cfg.Store.Passphrase))
		if err != nil {
			return err
		}
		a.Store = store
	case config.StoreRedis:
		client, err := redisclient.New(ctx, cfg.Redis, a.Registry)
		if err != nil {
			return fmt.Errorf("connect credential redis: %w", err)
		}
		a.Redis = client
		a.Store = credentials.NewRedisStore(client.Client, cfg.Store.Profile,
			credentials.WithRedisLogger(a.Logger))
	default:
		return fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
	a.Logger.InfoContext(ctx, "credential store ready",
		"kind", cfg.Store.Kind,
		"profile", cfg.Store.Profile,
	)
	return nil
}

// Close stops the state and releases the Redis connection.
func (a *App) Close() {
	a.State.Close()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
		}
	}
}
