package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/retry"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	// ErrTaskNotFound indicates no live task has the given ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask indicates a task with the same ID is already queued.
	ErrDuplicateTask = errors.New("task already exists")
	// ErrInvalidTransition indicates the task is not in a state that allows the action.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Queue owns the live task collection and the dead-letter collection.
// It is meant to be driven by a single owner; the mutex only protects
// readers such as metrics endpoints.
type Queue struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	order []string
	dlq   []models.DeadLetterTask

	cfg    retry.Config
	policy retry.Policy
	human  HumanPolicy

	debugLog func(format string, args ...interface{})
}

// Option configures a Queue.
type Option func(*Queue)

// WithHumanPolicy sets the human review policy.
func WithHumanPolicy(p HumanPolicy) Option {
	return func(q *Queue) {
		q.human = p
	}
}

// WithRetryPolicy sets the jitter source for retry delays.
func WithRetryPolicy(p retry.Policy) Option {
	return func(q *Queue) {
		q.policy = p
	}
}

// WithDebugLog sets a debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(q *Queue) {
		q.debugLog = fn
	}
}

// New creates an empty queue.
func New(cfg retry.Config, opts ...Option) *Queue {
	q := &Queue{
		tasks:    make(map[string]*models.Task),
		cfg:      cfg,
		human:    DefaultHumanPolicy(),
		debugLog: func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Config returns the retry configuration.
func (q *Queue) Config() retry.Config {
	return q.cfg
}

// HumanPolicy returns the human review policy.
func (q *Queue) HumanPolicy() HumanPolicy {
	return q.human
}

// NewTask builds a queued task for payload with a generated ID.
func NewTask(agentID string, payload models.Payload, priority models.Priority) *models.Task {
	t := &models.Task{
		ID:       uuid.New().String(),
		AgentID:  agentID,
		Priority: priority,
		Status:   models.TaskStatusQueued,
		Payload:  payload,
	}
	if payload != nil {
		t.Type = payload.TaskType()
	}
	return t
}

// ValidateTask checks that a task can be accepted into the queue.
func ValidateTask(t *models.Task) error {
	if t.ID == "" {
		return models.NewValidationError("", "id", "required")
	}
	if t.AgentID == "" {
		return models.NewValidationError(t.ID, "agent_id", "required")
	}
	if !t.Type.Valid() {
		return models.NewValidationError(t.ID, "type", fmt.Sprintf("unknown task type %q", t.Type))
	}
	if t.Payload == nil {
		return models.NewValidationError(t.ID, "payload", "required")
	}
	if t.Payload.TaskType() != t.Type {
		return models.NewValidationError(t.ID, "payload", fmt.Sprintf("payload is %s, task is %s", t.Payload.TaskType(), t.Type))
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return models.NewValidationError(t.ID, "priority", fmt.Sprintf("unknown priority %q", t.Priority))
	}
	if t.MaxRetries != nil && *t.MaxRetries < 0 {
		return models.NewValidationError(t.ID, "max_retries", "must not be negative")
	}
	if err := t.Payload.Validate(); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return models.NewValidationError(t.ID, "payload."+ve.Field, ve.Reason)
		}
		return err
	}
	return nil
}

// Enqueue validates task and adds a copy to the queue.
func (q *Queue) Enqueue(task *models.Task, now time.Time) error {
	if err := ValidateTask(task); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	t := task.Clone()
	if t.Status == "" {
		t.Status = models.TaskStatusQueued
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	q.tasks[t.ID] = t
	q.order = append(q.order, t.ID)
	q.debugLog("[queue] enqueued %s type=%s agent=%s priority=%s", t.ID, t.Type, t.AgentID, t.Priority)
	return nil
}

// Get returns a copy of a live task.
func (q *Queue) Get(id string) (*models.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Ready returns copies of tasks ready to run, highest priority first, then
// oldest first.
func (q *Queue) Ready(now time.Time) []*models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	ready := GetReadyTasks(q.liveLocked(), now)
	sort.SliceStable(ready, func(i, j int) bool {
		ri, rj := ready[i].Priority.Rank(), ready[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	out := make([]*models.Task, len(ready))
	for i, t := range ready {
		out[i] = t.Clone()
	}
	return out
}

// Claim moves a ready task to processing. If the review gate flags the task,
// it moves to human_intervention instead and Claim returns false.
func (q *Queue) Claim(id string, now time.Time) (*models.Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != models.TaskStatusQueued {
		return nil, false, fmt.Errorf("%w: claim %s in status %s", ErrInvalidTransition, id, t.Status)
	}
	if !retry.IsTaskReadyForRetry(t, now) {
		return nil, false, fmt.Errorf("%w: %s is backing off until %s", ErrInvalidTransition, id, t.NextRetryAt.Format(time.RFC3339))
	}

	if !t.ResumeAfterHuman {
		// Exhausted retries are judged on the failure path, not here.
		if pause, reason := q.human.check(t, q.cfg.MaxRetries, false); pause {
			t.Status = models.TaskStatusHumanIntervention
			q.debugLog("[queue] %s paused for human review: %s", id, reason)
			return t.Clone(), false, nil
		}
	}

	t.Status = models.TaskStatusProcessing
	started := now
	t.StartedAt = &started
	q.debugLog("[queue] claimed %s (attempt %d)", id, t.RetryCount+1)
	return t.Clone(), true, nil
}

// Record applies an attempt result to a processing task. Dead-lettered
// tasks leave the live queue and are appended to the DLQ exactly once.
func (q *Queue) Record(id string, result agent.Result, now time.Time) (Decision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != models.TaskStatusProcessing {
		return Decision{}, fmt.Errorf("%w: record %s in status %s", ErrInvalidTransition, id, t.Status)
	}

	if !result.Success() && !t.ResumeAfterHuman {
		probe := t.Clone()
		if result.Confidence != nil {
			c := *result.Confidence
			probe.Confidence = &c
		}
		if pause, reason := q.human.ShouldPauseForHuman(probe, q.cfg.MaxRetries); pause {
			probe.Status = models.TaskStatusHumanIntervention
			if result.Err != nil {
				probe.LastError = result.Err.Error()
			}
			q.tasks[id] = probe
			q.debugLog("[queue] %s failed and paused for human review: %s", id, reason)
			return Decision{Action: ActionHumanReview, Task: probe.Clone(), Reason: reason}, nil
		}
	}

	d := handleResult(q.policy, t, result, q.cfg, now)
	switch d.Action {
	case ActionMoveToDLQ:
		delete(q.tasks, id)
		q.removeOrderLocked(id)
		q.dlq = append(q.dlq, *d.DeadLetter)
		q.debugLog("[queue] %s moved to DLQ after %d retries: %s", id, t.RetryCount, d.DeadLetter.FinalError)
	default:
		q.tasks[id] = d.Task
		q.debugLog("[queue] %s -> %s", id, d.Action)
	}
	return Decision{Action: d.Action, Task: d.Task.Clone(), DeadLetter: d.DeadLetter, Reason: d.Reason}, nil
}

// Touch records that a human looked at a task.
func (q *Queue) Touch(id string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	touched := now
	t.HumanTouchedAt = &touched
	return nil
}

// Resume releases a task a human has reviewed. The task is queued for an
// immediate attempt and skips the review gate from then on.
func (q *Queue) Resume(id string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if t.Status != models.TaskStatusHumanIntervention && t.Status != models.TaskStatusQueued {
		return fmt.Errorf("%w: resume %s in status %s", ErrInvalidTransition, id, t.Status)
	}
	q.resumeLocked(t, now)
	return nil
}

func (q *Queue) resumeLocked(t *models.Task, now time.Time) {
	touched := now
	t.Status = models.TaskStatusQueued
	t.ResumeAfterHuman = true
	t.HumanTouchedAt = &touched
	t.NextRetryAt = nil
	q.debugLog("[queue] %s resumed after human review", t.ID)
}

// AutoResume releases human_intervention tasks that CanResumeAfterHuman
// allows. It returns the IDs released.
func (q *Queue) AutoResume(now time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var resumed []string
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status != models.TaskStatusHumanIntervention {
			continue
		}
		if q.human.CanResumeAfterHuman(t, now) {
			q.resumeLocked(t, now)
			resumed = append(resumed, id)
		}
	}
	return resumed
}

// ReplayDeadLetter moves a dead-lettered task back into the live queue for
// one more human-approved attempt. Its retry count is kept.
func (q *Queue) ReplayDeadLetter(id string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tasks[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	for i, dl := range q.dlq {
		if dl.ID != id {
			continue
		}
		t := dl.Task.Clone()
		t.CompletedAt = nil
		q.resumeLocked(t, now)
		q.tasks[id] = t
		q.order = append(q.order, id)
		q.dlq = append(q.dlq[:i], q.dlq[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s not in dead-letter queue", ErrTaskNotFound, id)
}

// Snapshot returns copies of every live task in insertion order.
func (q *Queue) Snapshot() []*models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	live := q.liveLocked()
	out := make([]*models.Task, len(live))
	for i, t := range live {
		out[i] = t.Clone()
	}
	return out
}

// DeadLetters returns a copy of the dead-letter queue.
func (q *Queue) DeadLetters() []models.DeadLetterTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.DeadLetterTask(nil), q.dlq...)
}

// Restore replaces the queue contents, for loading persisted state.
// Tasks that were processing when saved are queued again.
func (q *Queue) Restore(tasks []*models.Task, dlq []models.DeadLetterTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = make(map[string]*models.Task, len(tasks))
	q.order = q.order[:0]
	for _, t := range tasks {
		cp := t.Clone()
		if cp.Status == models.TaskStatusProcessing {
			cp.Status = models.TaskStatusQueued
		}
		q.tasks[cp.ID] = cp
		q.order = append(q.order, cp.ID)
	}
	q.dlq = append([]models.DeadLetterTask(nil), dlq...)
}

// Metrics computes metrics over the live queue and DLQ.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return CalculateQueueMetrics(q.liveLocked(), q.dlq)
}

func (q *Queue) liveLocked() []*models.Task {
	live := make([]*models.Task, 0, len(q.order))
	for _, id := range q.order {
		live = append(live, q.tasks[id])
	}
	return live
}

func (q *Queue) removeOrderLocked(id string) {
	for i, v := range q.order {
		if v == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
