package orchestrator

import (
	"time"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/breaker"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// RequiredConfig contains the required dependencies for creating an Orchestrator.
type RequiredConfig struct {
	// Agents resolves task assignments to executors.
	Agents *AgentRegistry
}

// orchestratorOptions holds optional configuration for the Orchestrator.
type orchestratorOptions struct {
	pattern        models.Pattern
	breakers       *breaker.Registry
	fallback       agent.FallbackFunc
	defaultTimeout time.Duration
	maxConcurrency int
	coordinator    string
	logger         *DebugLogger
	emitter        *EventEmitter
	now            func() time.Time
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*orchestratorOptions)

// WithPattern sets the execution pattern. Defaults to sequential.
func WithPattern(p models.Pattern) Option {
	return func(o *orchestratorOptions) {
		o.pattern = p
	}
}

// WithBreakers guards every agent call with the breaker named after the
// agent. fallback may be nil.
func WithBreakers(reg *breaker.Registry, fallback agent.FallbackFunc) Option {
	return func(o *orchestratorOptions) {
		o.breakers = reg
		o.fallback = fallback
	}
}

// WithDefaultTimeout sets the timeout for tasks that do not set their own.
// Zero disables the default.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) {
		o.defaultTimeout = d
	}
}

// WithMaxConcurrency bounds how many agent calls run at once within a wave.
// Zero or negative means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(o *orchestratorOptions) {
		o.maxConcurrency = n
	}
}

// WithCoordinator names the coordinator task for the hierarchical pattern.
// Without it the first task in the batch coordinates.
func WithCoordinator(taskID string) Option {
	return func(o *orchestratorOptions) {
		o.coordinator = taskID
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) {
		o.logger = l
	}
}

// WithEmitter sets the event emitter. Without it events are discarded.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) {
		o.emitter = e
	}
}

// WithClock overrides the time source used for traces.
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) {
		o.now = now
	}
}
