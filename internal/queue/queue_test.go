package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/retry"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// noJitter makes retry delays exact.
var noJitter = retry.Policy{Rand: func() float64 { return 0.5 }}

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	return New(retry.DefaultConfig(), append([]Option{WithRetryPolicy(noJitter)}, opts...)...)
}

func researchTask(id string) *models.Task {
	return &models.Task{
		ID:       id,
		AgentID:  "research",
		Type:     models.TaskTypeResearchPrecedents,
		Priority: models.PriorityMedium,
		Payload:  &models.ResearchPrecedentsPayload{Query: "q"},
	}
}

func mustEnqueue(t *testing.T, q *Queue, task *models.Task, now time.Time) {
	t.Helper()
	if err := q.Enqueue(task, now); err != nil {
		t.Fatalf("Enqueue(%s) error = %v", task.ID, err)
	}
}

func mustClaim(t *testing.T, q *Queue, id string, now time.Time) *models.Task {
	t.Helper()
	task, ok, err := q.Claim(id, now)
	if err != nil {
		t.Fatalf("Claim(%s) error = %v", id, err)
	}
	if !ok {
		t.Fatalf("Claim(%s) paused task for review", id)
	}
	return task
}

func TestEnqueue_Validation(t *testing.T) {
	q := newTestQueue(t)

	tests := []struct {
		name   string
		mutate func(*models.Task)
		field  string
	}{
		{"missing id", func(t *models.Task) { t.ID = "" }, "id"},
		{"missing agent", func(t *models.Task) { t.AgentID = "" }, "agent_id"},
		{"unknown type", func(t *models.Task) { t.Type = "teleport" }, "type"},
		{"missing payload", func(t *models.Task) { t.Payload = nil }, "payload"},
		{"mismatched payload", func(t *models.Task) { t.Payload = &models.RiskAnalysisPayload{ProcessNumber: "1", Summary: "s"} }, "payload"},
		{"invalid payload", func(t *models.Task) { t.Payload = &models.ResearchPrecedentsPayload{} }, "payload.query"},
		{"bad priority", func(t *models.Task) { t.Priority = "urgent" }, "priority"},
		{"negative retry limit", func(t *models.Task) { t.MaxRetries = models.RetryLimit(-1) }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := researchTask("t1")
			tt.mutate(task)
			err := q.Enqueue(task, testNow)
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Enqueue() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	if got := q.Metrics().Total; got != 0 {
		t.Errorf("rejected tasks were queued: total = %d", got)
	}
}

func TestEnqueue_DefaultsAndDuplicates(t *testing.T) {
	q := newTestQueue(t)
	task := NewTask("research", &models.ResearchPrecedentsPayload{Query: "q"}, "")
	if task.ID == "" || task.Type != models.TaskTypeResearchPrecedents {
		t.Fatalf("NewTask() = %+v", task)
	}
	mustEnqueue(t, q, task, testNow)

	got, ok := q.Get(task.ID)
	if !ok {
		t.Fatal("Get() did not find enqueued task")
	}
	if got.Status != models.TaskStatusQueued || got.Priority != models.PriorityMedium || !got.CreatedAt.Equal(testNow) {
		t.Errorf("defaults not applied: %+v", got)
	}

	if err := q.Enqueue(task, testNow); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("second Enqueue() error = %v, want ErrDuplicateTask", err)
	}
}

func TestReady_Ordering(t *testing.T) {
	q := newTestQueue(t)
	low := researchTask("low")
	low.Priority = models.PriorityLow
	high := researchTask("high")
	high.Priority = models.PriorityHigh
	older := researchTask("older")

	mustEnqueue(t, q, low, testNow)
	mustEnqueue(t, q, researchTask("newer"), testNow.Add(time.Second))
	mustEnqueue(t, q, older, testNow.Add(-time.Second))
	mustEnqueue(t, q, high, testNow.Add(2*time.Second))

	got := ids(q.Ready(testNow.Add(time.Minute)))
	want := []string{"high", "older", "newer", "low"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("Ready() = %v, want %v", got, want)
		}
	}
}

func TestQueue_RetryThenDLQ(t *testing.T) {
	q := newTestQueue(t, WithHumanPolicy(HumanPolicy{}))
	mustEnqueue(t, q, researchTask("t1"), testNow)

	now := testNow
	fail := agent.Failed(errors.New("upstream 503"))
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

	for i, want := range wantDelays {
		mustClaim(t, q, "t1", now)
		d, err := q.Record("t1", fail, now)
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if d.Action != ActionRetry {
			t.Fatalf("attempt %d: Action = %s, want retry", i+1, d.Action)
		}
		if got := d.Task.NextRetryAt.Sub(now); got != want {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, want)
		}
		if len(q.Ready(now)) != 0 {
			t.Errorf("attempt %d: task ready before backoff elapsed", i+1)
		}
		if _, _, err := q.Claim("t1", now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("attempt %d: early Claim() error = %v, want ErrInvalidTransition", i+1, err)
		}
		now = *d.Task.NextRetryAt
	}

	mustClaim(t, q, "t1", now)
	d, err := q.Record("t1", fail, now)
	if err != nil {
		t.Fatalf("final Record() error = %v", err)
	}
	if d.Action != ActionMoveToDLQ {
		t.Fatalf("final Action = %s, want move_to_dlq", d.Action)
	}

	if _, ok := q.Get("t1"); ok {
		t.Error("dead-lettered task still in live queue")
	}
	dlq := q.DeadLetters()
	if len(dlq) != 1 || dlq[0].ID != "t1" || dlq[0].RetryCount != 3 {
		t.Fatalf("DeadLetters() = %+v", dlq)
	}
	if _, err := q.Record("t1", fail, now); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Record() after DLQ error = %v, want ErrTaskNotFound", err)
	}
	if len(q.DeadLetters()) != 1 {
		t.Error("task dead-lettered twice")
	}

	m := q.Metrics()
	if m.Total != 0 || m.InDLQ != 1 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestQueue_CompleteIsTerminal(t *testing.T) {
	q := newTestQueue(t)
	mustEnqueue(t, q, researchTask("t1"), testNow)
	mustClaim(t, q, "t1", testNow)

	d, err := q.Record("t1", agent.Succeeded("found 3 precedents"), testNow)
	if err != nil || d.Action != ActionComplete {
		t.Fatalf("Record() = %v, %v", d.Action, err)
	}
	if _, _, err := q.Claim("t1", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Claim() on completed task error = %v, want ErrInvalidTransition", err)
	}
	if err := q.Resume("t1", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume() on completed task error = %v, want ErrInvalidTransition", err)
	}
	if m := q.Metrics(); m.Completed != 1 || m.SuccessRate != 100 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestQueue_SensitiveTaskPausedAtClaim(t *testing.T) {
	q := newTestQueue(t)
	task := &models.Task{
		ID:      "petition-1",
		AgentID: "drafter",
		Type:    models.TaskTypeDraftPetition,
		Payload: &models.DraftPetitionPayload{PetitionType: "appeal", Facts: "facts"},
	}
	mustEnqueue(t, q, task, testNow)

	got, ok, err := q.Claim("petition-1", testNow)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if ok || got.Status != models.TaskStatusHumanIntervention {
		t.Fatalf("Claim() = %v, status %s; want paused", ok, got.Status)
	}
	if len(q.Ready(testNow)) != 0 {
		t.Error("paused task should not be ready")
	}

	if err := q.Resume("petition-1", testNow); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	claimed := mustClaim(t, q, "petition-1", testNow)
	if !claimed.ResumeAfterHuman {
		t.Error("resumed task should carry ResumeAfterHuman")
	}
}

func TestQueue_CriticalPausedAtClaim(t *testing.T) {
	q := newTestQueue(t)
	task := researchTask("crit")
	task.Priority = models.PriorityCritical
	mustEnqueue(t, q, task, testNow)

	if _, ok, _ := q.Claim("crit", testNow); ok {
		t.Error("critical task should pause before automated handling")
	}
	if m := q.Metrics(); m.HumanIntervention != 1 {
		t.Errorf("HumanIntervention = %d, want 1", m.HumanIntervention)
	}
}

func TestQueue_ExhaustedRetriesGoToHumanInsteadOfDLQ(t *testing.T) {
	q := newTestQueue(t)
	task := researchTask("t1")
	task.RetryCount = 3
	mustEnqueue(t, q, task, testNow)
	mustClaim(t, q, "t1", testNow)

	d, err := q.Record("t1", agent.Failed(errors.New("still failing")), testNow)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if d.Action != ActionHumanReview || d.Task.Status != models.TaskStatusHumanIntervention {
		t.Fatalf("Record() = %s/%s, want human_review", d.Action, d.Task.Status)
	}
	if d.Task.LastError != "still failing" {
		t.Errorf("LastError = %q", d.Task.LastError)
	}
	if len(q.DeadLetters()) != 0 {
		t.Error("task should not be dead-lettered while awaiting review")
	}

	// Released by a human, a further failure dead-letters the task.
	if err := q.Resume("t1", testNow); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	mustClaim(t, q, "t1", testNow)
	d, _ = q.Record("t1", agent.Failed(errors.New("still failing")), testNow)
	if d.Action != ActionMoveToDLQ {
		t.Errorf("Action after human release = %s, want move_to_dlq", d.Action)
	}
}

func TestQueue_LowConfidenceFailurePauses(t *testing.T) {
	q := newTestQueue(t)
	mustEnqueue(t, q, researchTask("t1"), testNow)
	mustClaim(t, q, "t1", testNow)

	conf := 0.3
	d, _ := q.Record("t1", agent.Result{Err: errors.New("unsure"), Confidence: &conf}, testNow)
	if d.Action != ActionHumanReview {
		t.Errorf("Action = %s, want human_review", d.Action)
	}
}

func TestQueue_AutoResume(t *testing.T) {
	q := newTestQueue(t)
	task := researchTask("crit")
	task.Priority = models.PriorityCritical
	mustEnqueue(t, q, task, testNow)
	q.Claim("crit", testNow)

	if got := q.AutoResume(testNow.Add(48 * time.Hour)); len(got) != 0 {
		t.Errorf("AutoResume() released untouched task: %v", got)
	}

	if err := q.Touch("crit", testNow); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if got := q.AutoResume(testNow.Add(23 * time.Hour)); len(got) != 0 {
		t.Errorf("AutoResume() released recently touched task: %v", got)
	}
	got := q.AutoResume(testNow.Add(25 * time.Hour))
	if len(got) != 1 || got[0] != "crit" {
		t.Fatalf("AutoResume() = %v, want [crit]", got)
	}
	mustClaim(t, q, "crit", testNow.Add(25*time.Hour))
}

func TestQueue_ReplayDeadLetter(t *testing.T) {
	q := newTestQueue(t, WithHumanPolicy(HumanPolicy{}))
	task := researchTask("t1")
	task.MaxRetries = models.RetryLimit(1)
	task.RetryCount = 1
	mustEnqueue(t, q, task, testNow)
	mustClaim(t, q, "t1", testNow)
	q.Record("t1", agent.Failed(errors.New("x")), testNow)

	if err := q.ReplayDeadLetter("t1", testNow); err != nil {
		t.Fatalf("ReplayDeadLetter() error = %v", err)
	}
	if len(q.DeadLetters()) != 0 {
		t.Error("replayed task still in DLQ")
	}
	got := mustClaim(t, q, "t1", testNow)
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1 (never decreases)", got.RetryCount)
	}
	if err := q.ReplayDeadLetter("missing", testNow); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("ReplayDeadLetter(missing) error = %v, want ErrTaskNotFound", err)
	}
}

func TestQueue_SnapshotRestore(t *testing.T) {
	q := newTestQueue(t)
	mustEnqueue(t, q, researchTask("a"), testNow)
	mustEnqueue(t, q, researchTask("b"), testNow)
	mustClaim(t, q, "b", testNow)

	snap := q.Snapshot()
	dlq := []models.DeadLetterTask{{Task: models.Task{ID: "old"}, FinalError: "x"}}

	restored := newTestQueue(t)
	restored.Restore(snap, dlq)

	got, ok := restored.Get("b")
	if !ok || got.Status != models.TaskStatusQueued {
		t.Errorf("restored processing task = %+v, want queued", got)
	}
	if m := restored.Metrics(); m.Total != 2 || m.InDLQ != 1 {
		t.Errorf("restored Metrics() = %+v", m)
	}

	snap[0].AgentID = "mutated"
	if a, _ := restored.Get("a"); a.AgentID != "research" {
		t.Error("Restore() should copy tasks")
	}
}
