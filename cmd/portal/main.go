package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procura/internal/app"
	"procura/internal/platform/config"
	"procura/internal/platform/health"
	"procura/internal/platform/logger"
	"procura/internal/portal"
	request "procura/pkg/platform/middleware/request"
)

const poolStatsInterval = 15 * time.Second

// main wires the session core, serves the portal and shuts down gracefully on
// SIGINT or SIGTERM.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	log := logger.NewWithLevel(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise portal", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.State.Start(ctx); err != nil {
		log.Error("failed to read stored session", "error", err)
		os.Exit(1)
	}

	checks := health.New(cfg.Env)
	checks.RegisterCheck("backend", func(context.Context) error {
		if a.Breaker.IsOpen() {
			return errors.New("circuit open")
		}
		return nil
	})
	checks.RegisterDetail("backend_circuit", func() string { return a.Breaker.State().String() })
	checks.RegisterDetail("credential_store", func() string { return cfg.Store.Kind })
	if a.Redis != nil {
		checks.RegisterCheck("credential_store", a.Redis.Health)
		go recordPoolStats(ctx, a)
	}

	handler := portal.New(a.State, a.Client, a.Cache, log)
	router := portal.NewRouter(handler, portal.RouterConfig{
		Logger:   log,
		Health:   checks,
		Gatherer: a.Registry,
		Metrics:  request.NewMetrics(a.Registry),
	})

	srv := &http.Server{
		Addr:              cfg.Portal.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting portal",
		"addr", cfg.Portal.Addr,
		"backend", cfg.Backend.BaseURL,
		"store", cfg.Store.Kind,
		"env", cfg.Env,
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down portal gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Portal.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("portal stopped")
}

func recordPoolStats(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Redis.RecordPoolStats()
		}
	}
}
