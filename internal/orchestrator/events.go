package orchestrator

import (
	"time"

	"github.com/ShayCichocki/conductor/internal/breaker"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventRunStarted indicates an orchestration run has started.
	EventRunStarted EventType = "run_started"
	// EventRunCompleted indicates an orchestration run has finished.
	EventRunCompleted EventType = "run_completed"
	// EventTaskStarted indicates a task attempt has started.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task attempt succeeded.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task attempt failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped indicates a task was not attempted because a dependency failed.
	EventTaskSkipped EventType = "task_skipped"
	// EventConsensus indicates a consensus answer was chosen for a broadcast task.
	EventConsensus EventType = "consensus"
	// EventTaskRetry indicates a queued task was scheduled for another attempt.
	EventTaskRetry EventType = "task_retry"
	// EventTaskDeadLettered indicates a queued task moved to the dead-letter queue.
	EventTaskDeadLettered EventType = "task_dead_lettered"
	// EventTaskHumanReview indicates a queued task is waiting for a human.
	EventTaskHumanReview EventType = "task_human_review"
	// EventTaskResumed indicates a queued task was released after human review.
	EventTaskResumed EventType = "task_resumed"
	// EventBreakerStateChanged indicates a circuit breaker changed state.
	EventBreakerStateChanged EventType = "breaker_state_changed"
)

// OrchestratorEvent represents an event emitted by the orchestrator.
type OrchestratorEvent struct {
	// Type is the kind of event.
	Type EventType
	// RunID is the orchestration run, if applicable.
	RunID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// AgentID is the ID of the related agent or breaker service, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time for completion events.
	Duration time.Duration
}

// BreakerEventHook returns a breaker state-change callback that emits
// EventBreakerStateChanged on e.
func BreakerEventHook(e *EventEmitter) breaker.StateChangeFunc {
	return func(service string, from, to breaker.State) {
		e.Emit(OrchestratorEvent{
			Type:      EventBreakerStateChanged,
			AgentID:   service,
			Message:   string(from) + " -> " + string(to),
			Timestamp: time.Now(),
		})
	}
}
