package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/swapi-aggregator/internal/server"
	"github.com/Sternrassler/swapi-aggregator/pkg/client"
	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/pagination"
	"github.com/Sternrassler/swapi-aggregator/pkg/resolve"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cfg, envErr := configFromEnv()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP aggregation server",
		Args:  cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if envErr != nil {
				return fmt.Errorf("invalid environment: %w", envErr)
			}
			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.Port, "port", "p", cfg.Port, "listen port (PORT)")
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "upstream API root (SWAPI_BASE_URL)")
	f.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent sent upstream (USER_AGENT)")
	f.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis for the shared error budget, empty to disable (REDIS_URL)")
	f.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "outbound requests per second, 0 for unlimited (RATE_LIMIT)")
	f.IntVar(&cfg.MaxConcurrency, "max-concurrency", cfg.MaxConcurrency, "in-flight resident lookups per request (MAX_CONCURRENCY)")
	f.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "pagination chain limit (MAX_PAGES)")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "upstream retries after the first attempt (MAX_RETRIES)")
	f.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", cfg.UpstreamTimeout, "single upstream call timeout (UPSTREAM_TIMEOUT)")
	f.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "whole aggregation timeout (REQUEST_TIMEOUT)")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")
	f.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human-readable logs (LOG_PRETTY)")

	return cmd
}

// runServe wires the aggregator and blocks until ctx is done or the server fails.
func runServe(ctx context.Context, cfg serveConfig) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{Level: level, Pretty: cfg.LogPretty, Output: os.Stderr})
	logger := logging.NewLogger("main")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, error budget fails open until it recovers")
		} else {
			logger.Info().Msg("Connected to Redis")
		}
		cancel()
	}

	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Redis = rdb
	clientCfg.RateLimit = cfg.RateLimit
	clientCfg.MaxConcurrency = cfg.MaxConcurrency
	clientCfg.MaxRetries = cfg.MaxRetries
	clientCfg.Timeout = cfg.UpstreamTimeout

	apiClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}
	defer apiClient.Close()

	srv, err := server.New(server.Dependencies{
		Collector: pagination.NewCollector(apiClient, pagination.Config{MaxPages: cfg.MaxPages}),
		Resolver:  resolve.NewResolver(apiClient, resolve.Config{MaxConcurrency: cfg.MaxConcurrency}),
		Readiness: apiClient.Ping,
	}, server.Config{
		Addr:            cfg.addr(),
		RequestTimeout:  cfg.RequestTimeout,
		ShutdownTimeout: shutdownTimeout,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info().
		Str("addr", srv.Addr()).
		Str("base_url", apiClient.BaseURL()).
		Str("user_agent", cfg.UserAgent).
		Bool("error_budget", rdb != nil).
		Msg("SWAPI aggregator started")

	select {
	case err := <-srv.Done():
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("Stopped")
	return nil
}
