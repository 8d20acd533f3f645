package agent

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout indicates an attempt exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrAgentUnavailable indicates the agent is missing or short-circuited.
	ErrAgentUnavailable = errors.New("agent unavailable")
)

// TimeoutError reports an attempt that ran past its deadline.
type TimeoutError struct {
	AgentID string
	TaskID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("task %s on agent %s: timeout after %s", e.TaskID, e.AgentID, e.Timeout)
	}
	return fmt.Sprintf("task %s on agent %s: timeout", e.TaskID, e.AgentID)
}

// Unwrap lets errors.Is match ErrTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// ExecutionError wraps an unclassified executor failure with triage context.
type ExecutionError struct {
	AgentID string
	TaskID  string
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s failed task %s (attempt %d): %v", e.AgentID, e.TaskID, e.Attempt, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Unavailable builds an ErrAgentUnavailable error for agentID.
func Unavailable(agentID string) error {
	return fmt.Errorf("%w: %s not registered", ErrAgentUnavailable, agentID)
}
