// Package agent defines the executor contract used to run agent work and the
// adapters that wrap it.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// Request is a single unit of work handed to an executor.
type Request struct {
	// AgentID is the identity the work is addressed to.
	AgentID string
	// TaskID is the orchestration or queue task being executed.
	TaskID string
	// Input is the prompt or instruction.
	Input string
	// Payload is the typed task input for queued tasks. Nil for orchestration tasks.
	Payload models.Payload
	// Attempt is the 1-indexed attempt number.
	Attempt int
}

// Result is the explicit outcome of an execution. A nil Err means success.
type Result struct {
	// Output is the agent's answer.
	Output string
	// Confidence is the agent's self-reported confidence (0-1), if any.
	Confidence *float64
	// Err is set when the execution failed.
	Err error
}

// Success reports whether the execution succeeded.
func (r Result) Success() bool {
	return r.Err == nil
}

// Succeeded builds a successful result.
func Succeeded(output string) Result {
	return Result{Output: output}
}

// Failed builds a failed result.
func Failed(err error) Result {
	return Result{Err: err}
}

// Executor runs agent work. Implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) Result

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) Result {
	return f(ctx, req)
}

// Run executes req with an optional per-attempt timeout. A timeout of zero
// means no deadline beyond ctx. Failures are classified: deadline expiry
// becomes ErrTimeout, and anything not already typed is wrapped in an
// ExecutionError.
func Run(ctx context.Context, exec Executor, req Request, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan Result, 1)
	go func() {
		done <- exec.Execute(ctx, req)
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Failed(ctx.Err())
	}

	if res.Err != nil {
		res.Err = classify(req, res.Err, timeout)
	}
	return res
}

func classify(req Request, err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrAgentUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{AgentID: req.AgentID, TaskID: req.TaskID, Timeout: timeout}
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &ExecutionError{AgentID: req.AgentID, TaskID: req.TaskID, Attempt: req.Attempt, Err: err}
}
