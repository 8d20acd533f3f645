package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/conductor/internal/breaker"
)

// FallbackFunc produces a result when the guarded executor fails or is
// short-circuited. cause wraps breaker.ErrServiceUnavailable when the call
// never reached the executor.
type FallbackFunc func(ctx context.Context, req Request, cause error) Result

// Guarded runs an executor behind a circuit breaker.
type Guarded struct {
	inner    Executor
	breaker  *breaker.Breaker
	fallback FallbackFunc
}

// Guard wraps inner with b. fallback may be nil.
func Guard(inner Executor, b *breaker.Breaker, fallback FallbackFunc) *Guarded {
	return &Guarded{inner: inner, breaker: b, fallback: fallback}
}

// Breaker returns the breaker protecting the executor.
func (g *Guarded) Breaker() *breaker.Breaker {
	return g.breaker
}

// Execute runs the request through the breaker.
func (g *Guarded) Execute(ctx context.Context, req Request) Result {
	var res Result

	var fb breaker.Fallback
	if g.fallback != nil {
		fb = func(ctx context.Context, cause error) error {
			res = g.fallback(ctx, req, cause)
			return res.Err
		}
	}

	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		res = g.inner.Execute(ctx, req)
		return res.Err
	}, fb)

	if err != nil && errors.Is(err, breaker.ErrServiceUnavailable) && !errors.Is(err, ErrAgentUnavailable) {
		err = fmt.Errorf("%w: %w", ErrAgentUnavailable, err)
	}
	res.Err = err
	return res
}
