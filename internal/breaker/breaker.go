// Package breaker guards calls to unreliable services with a circuit breaker.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrServiceUnavailable is returned when a call is short-circuited and no
// fallback was supplied.
var ErrServiceUnavailable = errors.New("service unavailable")

// State is the position of a breaker in its state machine.
type State string

const (
	// StateClosed passes every call through.
	StateClosed State = "closed"
	// StateOpen short-circuits every call until the reset timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen State = "half-open"
)

// Health is a coarse view of a breaker for dashboards.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the failure count that opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenMaxCalls is the number of probes admitted while half-open.
	HalfOpenMaxCalls int
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = d.HalfOpenMaxCalls
	}
	return c
}

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	ServiceName     string    `json:"service_name"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	HalfOpenCalls   int       `json:"half_open_calls"`

	// NextAttemptAt is when an open breaker admits its next probe. Zero
	// unless the breaker is open.
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`

	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalSuccesses  int64     `json:"total_successes"`
	ShortCircuited  int64     `json:"short_circuited"`
	LastSuccessTime time.Time `json:"last_success_time,omitempty"`
}

// NextAttemptIn returns how long until an open breaker probes again, or 0.
func (s Snapshot) NextAttemptIn(now time.Time) time.Duration {
	if s.State != StateOpen || s.NextAttemptAt.IsZero() {
		return 0
	}
	if d := s.NextAttemptAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// StateChangeFunc is called after every state transition.
type StateChangeFunc func(service string, from, to State)

// Operation is the protected call.
type Operation func(ctx context.Context) error

// Fallback is invoked instead of, or after, a failed operation.
// cause is ErrServiceUnavailable when the call was short-circuited.
type Fallback func(ctx context.Context, cause error) error

// Breaker is a circuit breaker for one service. All state transitions are
// serialized; the protected operation runs without holding the lock.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	halfOpenCalls int
	lastSuccess   time.Time

	// Cumulative counters survive Reset.
	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	shortCircuited int64

	now      func() time.Time
	onChange StateChangeFunc
	debugLog func(format string, args ...interface{})
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateChange registers a transition callback. It runs without the
// breaker lock held.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

// WithDebugLog sets a debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(b *Breaker) {
		b.debugLog = fn
	}
}

// New creates a closed breaker for the named service.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		state: StateClosed,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the protected service name.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) log(format string, args ...interface{}) {
	if b.debugLog != nil {
		b.debugLog(format, args...)
	}
}

type transition struct {
	from, to State
}

// setState changes state and returns the transition to report. Caller holds mu.
func (b *Breaker) setState(to State) *transition {
	if b.state == to {
		return nil
	}
	tr := &transition{from: b.state, to: to}
	b.state = to
	return tr
}

func (b *Breaker) notify(tr *transition) {
	if tr == nil {
		return
	}
	b.log("[breaker] %s: %s -> %s", b.name, tr.from, tr.to)
	if b.onChange != nil {
		b.onChange(b.name, tr.from, tr.to)
	}
}

// admit decides whether a call may run. It reserves a half-open probe slot
// when the call is admitted in the half-open state.
func (b *Breaker) admit() (bool, *transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	var tr *transition
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.cfg.ResetTimeout {
			b.shortCircuited++
			return false, nil
		}
		tr = b.setState(StateHalfOpen)
		b.halfOpenCalls = 0
	}

	if b.state == StateHalfOpen {
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			b.shortCircuited++
			return false, tr
		}
		b.halfOpenCalls++
	}
	return true, tr
}

func (b *Breaker) onSuccess() *transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalSuccesses++
	b.lastSuccess = b.now()
	b.failureCount = 0
	return b.setState(StateClosed)
}

func (b *Breaker) onFailure() *transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalFailures++
	b.failureCount++
	if b.failureCount >= b.cfg.FailureThreshold {
		b.lastFailure = b.now()
		return b.setState(StateOpen)
	}
	return nil
}

// Execute runs op through the breaker.
//
// While open (before the reset timeout) or half-open with every probe slot
// taken, op is not called: fallback runs with ErrServiceUnavailable, or
// ErrServiceUnavailable is returned when fallback is nil. When op fails the
// failure is counted and fallback, if any, runs with the operation's error.
func (b *Breaker) Execute(ctx context.Context, op Operation, fallback Fallback) error {
	ok, tr := b.admit()
	b.notify(tr)
	if !ok {
		b.log("[breaker] %s: short-circuited", b.name)
		if fallback != nil {
			return fallback(ctx, ErrServiceUnavailable)
		}
		return fmt.Errorf("%s: %w", b.name, ErrServiceUnavailable)
	}

	err := op(ctx)
	if err == nil {
		b.notify(b.onSuccess())
		return nil
	}

	b.notify(b.onFailure())
	if fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		ServiceName:     b.name,
		State:           b.state,
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailure,
		HalfOpenCalls:   b.halfOpenCalls,
		TotalCalls:      b.totalCalls,
		TotalFailures:   b.totalFailures,
		TotalSuccesses:  b.totalSuccesses,
		ShortCircuited:  b.shortCircuited,
		LastSuccessTime: b.lastSuccess,
	}
	if b.state == StateOpen {
		s.NextAttemptAt = b.lastFailure.Add(b.cfg.ResetTimeout)
	}
	return s
}

// NextAttemptIn returns how long until the open breaker admits a probe.
// It is 0 when the breaker is not open or the reset timeout has passed.
func (b *Breaker) NextAttemptIn() time.Duration {
	s := b.State()
	return s.NextAttemptIn(b.now())
}

// Health maps the current state to a health level.
func (b *Breaker) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return healthOf(b.state)
}

func healthOf(s State) Health {
	switch s {
	case StateOpen:
		return HealthUnhealthy
	case StateHalfOpen:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	tr := b.setState(StateClosed)
	b.failureCount = 0
	b.halfOpenCalls = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()
	b.notify(tr)
}
