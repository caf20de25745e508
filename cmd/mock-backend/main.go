// Command mock-backend serves the fake procurement REST backend for local
// portal development. Seeded accounts share the password "password123".
package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"procura/internal/platform/logger"
	"procura/pkg/testutil"
	"procura/pkg/testutil/backend"
)

const (
	defaultPort      = "8081"
	defaultLatencyMs = "0"
	defaultAccessTTL = "15m"
)

func main() {
	log := logger.New()

	port := getEnv("PORT", defaultPort)
	latency := time.Duration(getEnvInt("LATENCY_MS", defaultLatencyMs)) * time.Millisecond
	ttl, err := time.ParseDuration(getEnv("ACCESS_TTL", defaultAccessTTL))
	if err != nil {
		log.Error("invalid ACCESS_TTL", "error", err)
		os.Exit(1)
	}

	opts := []backend.Option{backend.WithAccessTTL(ttl)}
	if os.Getenv("ROTATE_REFRESH") == "true" {
		opts = append(opts, backend.WithRefreshRotation())
	}
	if key := os.Getenv("SIGNING_KEY"); key != "" {
		opts = append(opts, backend.WithSigningKey(key))
	}
	b := backend.New(opts...)
	b.SetLatency(latency)

	for _, u := range testutil.AllTestUsers() {
		log.Info("seeded account", "email", u.Email, "role", u.Role)
	}
	log.Info("mock backend starting",
		"addr", ":"+port,
		"base_url", "http://localhost:"+port+"/api",
		"access_ttl", ttl.String(),
		"latency", latency.String(),
	)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key, fallback string) int {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0
	}
	return n
}
