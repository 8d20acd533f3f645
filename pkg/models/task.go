package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus represents the current state of a queued task.
type TaskStatus string

const (
	// TaskStatusQueued indicates the task is waiting to be picked up.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusProcessing indicates an agent is working on the task.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task exhausted its retries.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusHumanIntervention indicates the task is paused for human review.
	TaskStatusHumanIntervention TaskStatus = "human_intervention"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusHumanIntervention:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that end a task instance.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents a unit of work owned by the task queue.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// AgentID is the identity of the executor that should run this task.
	AgentID string `json:"agent_id"`
	// Type selects the payload shape.
	Type TaskType `json:"type"`
	// Priority is the scheduling priority.
	Priority Priority `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Payload is the typed task input. Its TaskType must match Type.
	Payload Payload `json:"-"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task was last claimed for processing.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// RetryCount is the number of retries already scheduled. It never decreases.
	RetryCount int `json:"retry_count"`
	// MaxRetries overrides the policy limit when set. A pointer to 0 means
	// the task is never retried; nil falls back to the policy.
	MaxRetries *int `json:"max_retries,omitempty"`
	// NextRetryAt is the earliest time the task may run again.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`
	// ResumeAfterHuman marks a task a human explicitly released.
	ResumeAfterHuman bool `json:"resume_after_human,omitempty"`
	// HumanTouchedAt is when a human last looked at the task.
	HumanTouchedAt *time.Time `json:"human_touched_at,omitempty"`
	// Confidence is the confidence (0-1) reported with the last result, if any.
	Confidence *float64 `json:"confidence,omitempty"`
}

// EffectiveMaxRetries returns the task's own limit, or fallback when unset.
func (t *Task) EffectiveMaxRetries(fallback int) int {
	if t.MaxRetries != nil {
		return *t.MaxRetries
	}
	return fallback
}

// RetryLimit returns a MaxRetries value of n.
func RetryLimit(n int) *int {
	return &n
}

// Clone returns a copy of the task. Pointer timestamps are copied so the
// clone can be mutated independently.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.StartedAt = cloneTime(t.StartedAt)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	cp.NextRetryAt = cloneTime(t.NextRetryAt)
	cp.HumanTouchedAt = cloneTime(t.HumanTouchedAt)
	if t.Confidence != nil {
		c := *t.Confidence
		cp.Confidence = &c
	}
	if t.MaxRetries != nil {
		cp.MaxRetries = RetryLimit(*t.MaxRetries)
	}
	return &cp
}

// taskJSON is the wire form of Task with the payload envelope inlined.
type taskJSON struct {
	taskAlias
	Payload json.RawMessage `json:"payload,omitempty"`
}

type taskAlias Task

// MarshalJSON encodes the task with its payload envelope.
func (t Task) MarshalJSON() ([]byte, error) {
	out := taskJSON{taskAlias: taskAlias(t)}
	if t.Payload != nil {
		raw, err := EncodePayload(t.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a task and its payload envelope.
func (t *Task) UnmarshalJSON(data []byte) error {
	var in taskJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Task(in.taskAlias)
	if len(in.Payload) > 0 && string(in.Payload) != "null" {
		p, err := DecodePayload(in.Payload)
		if err != nil {
			return fmt.Errorf("decode payload for task %s: %w", t.ID, err)
		}
		t.Payload = p
	}
	return nil
}

// DeadLetterTask is a task that exhausted all retry attempts.
// It is created exactly once and is immutable afterwards.
type DeadLetterTask struct {
	Task
	// MovedToDLQAt is when the task entered the dead-letter queue.
	MovedToDLQAt time.Time `json:"moved_to_dlq_at"`
	// FinalError is the error that caused the final failure.
	FinalError string `json:"final_error"`
}

// MarshalJSON encodes the dead-letter entry including the embedded task.
func (d DeadLetterTask) MarshalJSON() ([]byte, error) {
	taskRaw, err := json.Marshal(d.Task)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(taskRaw, &fields); err != nil {
		return nil, err
	}
	fields["moved_to_dlq_at"], _ = json.Marshal(d.MovedToDLQAt)
	fields["final_error"], _ = json.Marshal(d.FinalError)
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a dead-letter entry.
func (d *DeadLetterTask) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &d.Task); err != nil {
		return err
	}
	var extra struct {
		MovedToDLQAt time.Time `json:"moved_to_dlq_at"`
		FinalError   string    `json:"final_error"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	d.MovedToDLQAt = extra.MovedToDLQAt
	d.FinalError = extra.FinalError
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
