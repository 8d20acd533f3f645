// Package retry computes backoff delays and retry eligibility for queued tasks.
package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// JitterFraction is the symmetric band applied to every computed delay.
const JitterFraction = 0.2

// Config controls how failed tasks are retried.
type Config struct {
	// MaxRetries is the retry limit for tasks that do not set their own.
	MaxRetries int
	// RetryDelay is the base delay before the first retry.
	RetryDelay time.Duration
	// MaxRetryDelay caps the exponential delay before jitter.
	MaxRetryDelay time.Duration
	// ExponentialBackoff doubles the delay for each attempt when true.
	ExponentialBackoff bool
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		RetryDelay:         time.Second,
		MaxRetryDelay:      30 * time.Second,
		ExponentialBackoff: true,
	}
}

// Policy computes retry delays with a pluggable random source.
// The zero value uses math/rand/v2.
type Policy struct {
	// Rand returns a value in [0, 1). Nil uses rand.Float64.
	Rand func() float64
}

// Delay returns the wait before the given retry attempt. Attempt is
// 0-indexed: the first retry uses attempt 0.
func (p Policy) Delay(attempt int, cfg Config) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if cfg.RetryDelay <= 0 {
		return 0
	}

	base := float64(cfg.RetryDelay)
	if cfg.ExponentialBackoff {
		base *= math.Pow(2, float64(attempt))
		if cfg.MaxRetryDelay > 0 && base > float64(cfg.MaxRetryDelay) {
			base = float64(cfg.MaxRetryDelay)
		}
	}

	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	// Map [0,1) onto [-JitterFraction, +JitterFraction).
	jitter := (r()*2 - 1) * JitterFraction
	d := base * (1 + jitter)
	// Uncapped exponential growth passes int64 nanoseconds after ~33 doublings.
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// CalculateRetryDelay returns the jittered delay for an attempt using the
// default random source.
func CalculateRetryDelay(attempt int, cfg Config) time.Duration {
	return Policy{}.Delay(attempt, cfg)
}

// CanRetryTask reports whether the task has retries left.
func CanRetryTask(task *models.Task, cfg Config) bool {
	return task.RetryCount < task.EffectiveMaxRetries(cfg.MaxRetries)
}

// IsTaskReadyForRetry reports whether the task's backoff has elapsed.
func IsTaskReadyForRetry(task *models.Task, now time.Time) bool {
	return task.NextRetryAt == nil || !now.Before(*task.NextRetryAt)
}
