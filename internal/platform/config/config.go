// Package config loads portal and CLI configuration from an optional YAML file
// overlaid with environment variables.
//
// Sources, highest priority first:
//  1. explicit path (--config flag);
//  2. PROCURA_CONFIG;
//  3. environment only.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the full process configuration.
type Config struct {
	Env      string        `yaml:"env" env:"PROCURA_ENV" env-default:"local"`
	LogLevel string        `yaml:"log_level" env:"PROCURA_LOG_LEVEL" env-default:"info"`
	Backend  BackendConfig `yaml:"backend"`
	Portal   PortalConfig  `yaml:"portal"`
	Store    StoreConfig   `yaml:"store"`
	Redis    RedisConfig   `yaml:"redis"`
	Session  SessionConfig `yaml:"session"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// BackendConfig locates the procurement REST backend.
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url" env:"PROCURA_BACKEND_URL" env-default:"http://localhost:8081/api"`
	Timeout   time.Duration `yaml:"timeout" env:"PROCURA_BACKEND_TIMEOUT" env-default:"15s"`
	UserAgent string        `yaml:"user_agent" env:"PROCURA_USER_AGENT" env-default:"procura-portal"`
}

// PortalConfig configures the local portal HTTP server.
type PortalConfig struct {
	Addr            string        `yaml:"addr" env:"PROCURA_PORTAL_ADDR" env-default:"127.0.0.1:8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PROCURA_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// StoreConfig selects where the session token pair lives.
type StoreConfig struct {
	Kind       string `yaml:"kind" env:"PROCURA_STORE" env-default:"file"`
	Dir        string `yaml:"dir" env:"PROCURA_STORE_DIR"`
	Profile    string `yaml:"profile" env:"PROCURA_PROFILE" env-default:"default"`
	Passphrase string `yaml:"passphrase" env:"PROCURA_STORE_PASSPHRASE"`
}

// RedisConfig holds Redis connection settings for the shared credential store.
type RedisConfig struct {
	URL          string        `yaml:"url" env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"1"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" env-default:"3s"`
}

// SessionConfig tunes refresh and caching behaviour.
type SessionConfig struct {
	AutoRefresh     bool          `yaml:"auto_refresh" env:"PROCURA_AUTO_REFRESH" env-default:"true"`
	RefreshSkew     time.Duration `yaml:"refresh_skew" env:"PROCURA_REFRESH_SKEW" env-default:"30s"`
	StaleTime       time.Duration `yaml:"stale_time" env:"PROCURA_STALE_TIME" env-default:"30s"`
	UserLoadTimeout time.Duration `yaml:"user_load_timeout" env:"PROCURA_USER_LOAD_TIMEOUT" env-default:"10s"`
}

// BreakerConfig tunes the backend circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"PROCURA_BREAKER_FAILURES" env-default:"5"`
	CoolDown         time.Duration `yaml:"cool_down" env:"PROCURA_BREAKER_COOLDOWN" env-default:"10s"`
}

// Load reads configuration from path (or PROCURA_CONFIG) and the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("PROCURA_CONFIG")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = defaultStoreDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend base_url %q must be an absolute URL", c.Backend.BaseURL)
	}
	switch c.Store.Kind {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("store kind redis requires redis url")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.Session.RefreshSkew < 0 || c.Session.StaleTime < 0 {
		return errors.New("session durations must not be negative")
	}
	return nil
}

func defaultStoreDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "procura"
	}
	return ".procura"
}
