package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/redis/go-redis/v9"
)

const defaultUserAgent = "swapi-aggregator/1.0"

// serveConfig is the resolved configuration of the serve command.
type serveConfig struct {
	Port      string
	BaseURL   string
	UserAgent string
	RedisURL  string

	RateLimit      int
	MaxConcurrency int
	MaxPages       int
	MaxRetries     int

	UpstreamTimeout time.Duration
	RequestTimeout  time.Duration

	LogLevel  string
	LogPretty bool
}

// configFromEnv reads the serve configuration from the environment.
func configFromEnv() (serveConfig, error) {
	cfg := serveConfig{
		Port:      getEnv("PORT", "5593"),
		BaseURL:   getEnv("SWAPI_BASE_URL", swapi.DefaultBaseURL),
		UserAgent: getEnv("USER_AGENT", defaultUserAgent),
		RedisURL:  getEnv("REDIS_URL", ""),
		LogLevel:  getEnv("LOG_LEVEL", string(logging.LevelInfo)),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.RateLimit, err = getEnvInt("RATE_LIMIT", 20)
	collect(err)
	cfg.MaxConcurrency, err = getEnvInt("MAX_CONCURRENCY", 16)
	collect(err)
	cfg.MaxPages, err = getEnvInt("MAX_PAGES", 100)
	collect(err)
	cfg.MaxRetries, err = getEnvInt("MAX_RETRIES", 0)
	collect(err)
	cfg.UpstreamTimeout, err = getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 60*time.Second)
	collect(err)
	cfg.LogPretty, err = getEnvBool("LOG_PRETTY", false)
	collect(err)

	return cfg, errors.Join(errs...)
}

// validate checks ranges that flags and env parsing cannot express.
func (c serveConfig) validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("port must be a number between 0 and 65535 (got %q)", c.Port)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max-concurrency must be >= 1 (got %d)", c.MaxConcurrency)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max-pages must be >= 1 (got %d)", c.MaxPages)
	}
	if c.UpstreamTimeout <= 0 || c.RequestTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// addr is the listen address for Port.
func (c serveConfig) addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	return v, nil
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
func newRedisClient(raw string) (*redis.Client, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: raw}), nil
}
