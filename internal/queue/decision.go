// Package queue owns queued agent tasks and decides, after every attempt,
// whether a task completes, retries, pauses for a human, or is dead-lettered.
package queue

import (
	"time"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/retry"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Action is the transition chosen for a task after an attempt.
type Action string

const (
	ActionComplete    Action = "complete"
	ActionRetry       Action = "retry"
	ActionMoveToDLQ   Action = "move_to_dlq"
	ActionHumanReview Action = "human_review"
)

// Decision is the outcome of handling a task result.
type Decision struct {
	Action Action
	// Task is the updated task. For move_to_dlq it is the failed task.
	Task *models.Task
	// DeadLetter is set only for move_to_dlq.
	DeadLetter *models.DeadLetterTask
	// Reason explains a human_review decision.
	Reason string
}

// PrepareTaskForRetry returns a copy of task scheduled for another attempt.
func PrepareTaskForRetry(task *models.Task, err error, cfg retry.Config, now time.Time) *models.Task {
	return prepareForRetry(retry.Policy{}, task, err, cfg, now)
}

func prepareForRetry(p retry.Policy, task *models.Task, err error, cfg retry.Config, now time.Time) *models.Task {
	t := task.Clone()
	t.RetryCount++
	t.Status = models.TaskStatusQueued
	if err != nil {
		t.LastError = err.Error()
	}
	next := now.Add(p.Delay(t.RetryCount-1, cfg))
	t.NextRetryAt = &next
	return t
}

// MoveTaskToDLQ marks a copy of task failed and wraps it in a dead-letter entry.
func MoveTaskToDLQ(task *models.Task, finalError string, now time.Time) models.DeadLetterTask {
	t := task.Clone()
	t.Status = models.TaskStatusFailed
	t.LastError = finalError
	t.NextRetryAt = nil
	return models.DeadLetterTask{
		Task:         *t,
		MovedToDLQAt: now,
		FinalError:   finalError,
	}
}

// HandleTaskResult chooses complete, retry, or move_to_dlq for an attempt.
// The input task is not modified.
func HandleTaskResult(task *models.Task, result agent.Result, cfg retry.Config, now time.Time) Decision {
	return handleResult(retry.Policy{}, task, result, cfg, now)
}

func handleResult(p retry.Policy, task *models.Task, result agent.Result, cfg retry.Config, now time.Time) Decision {
	if result.Success() {
		t := task.Clone()
		t.Status = models.TaskStatusCompleted
		t.CompletedAt = &now
		t.NextRetryAt = nil
		t.LastError = ""
		if result.Confidence != nil {
			c := *result.Confidence
			t.Confidence = &c
		}
		return Decision{Action: ActionComplete, Task: t}
	}

	if retry.CanRetryTask(task, cfg) {
		return Decision{Action: ActionRetry, Task: prepareForRetry(p, task, result.Err, cfg, now)}
	}

	msg := "unknown error"
	if result.Err != nil {
		msg = result.Err.Error()
	}
	dl := MoveTaskToDLQ(task, msg, now)
	return Decision{Action: ActionMoveToDLQ, Task: &dl.Task, DeadLetter: &dl}
}

// GetReadyTasks returns queued tasks whose backoff has elapsed.
func GetReadyTasks(tasks []*models.Task, now time.Time) []*models.Task {
	var ready []*models.Task
	for _, t := range tasks {
		if t.Status == models.TaskStatusQueued && retry.IsTaskReadyForRetry(t, now) {
			ready = append(ready, t)
		}
	}
	return ready
}

// GetFailedTasks returns tasks that have no retries left.
func GetFailedTasks(tasks []*models.Task, cfg retry.Config) []*models.Task {
	var failed []*models.Task
	for _, t := range tasks {
		if !retry.CanRetryTask(t, cfg) {
			failed = append(failed, t)
		}
	}
	return failed
}
