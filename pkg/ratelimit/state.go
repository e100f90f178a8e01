// Package ratelimit keeps a shared budget of upstream failures so that a
// misbehaving catalog API is not hammered by every replica at once.
// Failures are counted in Redis inside a fixed window; once the remaining
// budget drops under the critical threshold, outbound requests are refused
// until the window resets.
package ratelimit

import (
	"time"
)

// Redis keys for budget state.
const (
	RedisKeyFailures   = "swapi:budget:failures"
	RedisKeyLastUpdate = "swapi:budget:last_update"
)

// Defaults for the failure window.
const (
	DefaultBudget = 100
	DefaultWindow = 60 * time.Second
)

// Thresholds on remaining budget.
const (
	// ErrorThresholdCritical blocks outbound requests below this value.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning throttles outbound requests below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy marks the budget as healthy at or above this value.
	ErrorThresholdHealthy = 50
)

// BudgetState is the current view of the upstream failure budget.
type BudgetState struct {
	// ErrorsRemaining is the budget minus failures seen in the current window.
	ErrorsRemaining int `json:"errors_remaining"`

	// ResetAt is when the current window expires.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when a failure was last recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when ErrorsRemaining >= ErrorThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// NeedsCriticalBlock reports whether outbound requests must be refused.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.ErrorsRemaining < ErrorThresholdCritical
}

// NeedsThrottling reports whether outbound requests should be slowed down.
func (s *BudgetState) NeedsThrottling() bool {
	return s.ErrorsRemaining < ErrorThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the time left in the window, never negative.
func (s *BudgetState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.ErrorsRemaining >= ErrorThresholdHealthy
}

// newState builds a state from a failure count and window TTL.
func newState(budget, failures int, ttl time.Duration, lastUpdate time.Time) *BudgetState {
	remaining := budget - failures
	if remaining < 0 {
		remaining = 0
	}
	if ttl < 0 {
		ttl = 0
	}
	s := &BudgetState{
		ErrorsRemaining: remaining,
		ResetAt:         time.Now().Add(ttl),
		LastUpdate:      lastUpdate,
	}
	s.UpdateHealth()
	return s
}
