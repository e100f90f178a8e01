package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapi_error_budget_remaining",
		Help: "Upstream failures still allowed in the current window",
	})

	budgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_error_budget_blocks_total",
		Help: "Outbound requests refused because the failure budget is exhausted",
	})

	budgetThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_error_budget_throttles_total",
		Help: "Outbound requests delayed because the failure budget is low",
	})
)

// ThrottleDelay is how long a request waits when the budget is in warning state.
var ThrottleDelay = 1 * time.Second

// Config controls the failure window.
type Config struct {
	Budget int
	Window time.Duration
}

// DefaultConfig returns the default budget of 100 failures per minute.
func DefaultConfig() Config {
	return Config{Budget: DefaultBudget, Window: DefaultWindow}
}

// Tracker counts upstream failures in Redis and gates outbound requests.
// A nil *Tracker allows every request and records nothing.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	config Config
}

// NewTracker creates a tracker backed by redisClient.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, cfg Config) *Tracker {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	budgetRemaining.Set(float64(cfg.Budget))
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		config: cfg,
	}
}

// GetState reads the current budget. A missing window yields a full budget.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	if t == nil {
		return newState(DefaultBudget, 0, DefaultWindow, time.Time{}), nil
	}

	failures, err := t.redis.Get(ctx, RedisKeyFailures).Int()
	if errors.Is(err, redis.Nil) {
		return newState(t.config.Budget, 0, t.config.Window, time.Time{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failure count: %w", err)
	}

	ttl, err := t.redis.TTL(ctx, RedisKeyFailures).Result()
	if err != nil {
		return nil, fmt.Errorf("get window ttl: %w", err)
	}

	var lastUpdate time.Time
	unix, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if unix > 0 {
		lastUpdate = time.Unix(unix, 0)
	}

	return newState(t.config.Budget, failures, ttl, lastUpdate), nil
}

// RecordFailure counts one upstream failure in the current window.
func (t *Tracker) RecordFailure(ctx context.Context) error {
	if t == nil {
		return nil
	}

	now := time.Now()
	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, RedisKeyFailures)
	pipe.ExpireNX(ctx, RedisKeyFailures, t.config.Window)
	pipe.Set(ctx, RedisKeyLastUpdate, now.Unix(), t.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failure in redis: %w", err)
	}

	remaining := t.config.Budget - int(incr.Val())
	if remaining < 0 {
		remaining = 0
	}
	budgetRemaining.Set(float64(remaining))

	state := newState(t.config.Budget, int(incr.Val()), t.config.Window, now)
	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().Int("errors_remaining", remaining).Msg("Upstream error budget CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().Int("errors_remaining", remaining).Msg("Upstream error budget WARNING - requests will be throttled")
	default:
		t.logger.Debug().Int("errors_remaining", remaining).Msg("Upstream failure recorded")
	}

	return nil
}

// ShouldAllowRequest reports whether an outbound request may proceed.
// In warning state it waits ThrottleDelay first.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	if t == nil {
		return true, nil
	}

	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get budget state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream error budget exhausted - blocking request")
		budgetBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Msg("Upstream error budget low - throttling request")
		budgetThrottlesTotal.Inc()

		timer := time.NewTimer(ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Ping checks the Redis connection. A nil tracker is always ready.
func (t *Tracker) Ping(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.redis.Ping(ctx).Err()
}
