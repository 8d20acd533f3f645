package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/retry"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestPrepareTaskForRetry(t *testing.T) {
	cfg := retry.DefaultConfig()
	task := &models.Task{ID: "t1", Status: models.TaskStatusProcessing, RetryCount: 1}

	got := PrepareTaskForRetry(task, errors.New("rate limited"), cfg, testNow)

	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if got.Status != models.TaskStatusQueued {
		t.Errorf("Status = %s, want queued", got.Status)
	}
	if got.LastError != "rate limited" {
		t.Errorf("LastError = %q", got.LastError)
	}
	// Attempt index 1 means 2s base, so 1.6s to 2.4s.
	if got.NextRetryAt == nil {
		t.Fatal("NextRetryAt not set")
	}
	delay := got.NextRetryAt.Sub(testNow)
	if delay < 1600*time.Millisecond || delay > 2400*time.Millisecond {
		t.Errorf("delay = %v, want within [1.6s, 2.4s]", delay)
	}
	if task.RetryCount != 1 || task.Status != models.TaskStatusProcessing {
		t.Error("input task was modified")
	}
}

func TestMoveTaskToDLQ(t *testing.T) {
	task := &models.Task{ID: "t1", Status: models.TaskStatusProcessing, RetryCount: 3}
	dl := MoveTaskToDLQ(task, "gave up", testNow)

	if dl.Status != models.TaskStatusFailed {
		t.Errorf("Status = %s, want failed", dl.Status)
	}
	if dl.FinalError != "gave up" || !dl.MovedToDLQAt.Equal(testNow) {
		t.Errorf("dead letter = %+v", dl)
	}
	if dl.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", dl.RetryCount)
	}
}

func TestHandleTaskResult(t *testing.T) {
	cfg := retry.DefaultConfig()
	boom := agent.Failed(errors.New("boom"))

	tests := []struct {
		name       string
		retryCount int
		maxRetries *int
		result     agent.Result
		want       Action
		wantStatus models.TaskStatus
	}{
		{"success completes", 0, nil, agent.Succeeded("ok"), ActionComplete, models.TaskStatusCompleted},
		{"success after retries completes", 3, nil, agent.Succeeded("ok"), ActionComplete, models.TaskStatusCompleted},
		{"first failure retries", 0, nil, boom, ActionRetry, models.TaskStatusQueued},
		{"failure below limit retries", 2, nil, boom, ActionRetry, models.TaskStatusQueued},
		{"failure at limit dead-letters", 3, nil, boom, ActionMoveToDLQ, models.TaskStatusFailed},
		{"task limit overrides config", 1, models.RetryLimit(1), boom, ActionMoveToDLQ, models.TaskStatusFailed},
		{"explicit zero limit never retries", 0, models.RetryLimit(0), boom, ActionMoveToDLQ, models.TaskStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &models.Task{ID: "t", Status: models.TaskStatusProcessing, RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			d := HandleTaskResult(task, tt.result, cfg, testNow)
			if d.Action != tt.want {
				t.Fatalf("Action = %s, want %s", d.Action, tt.want)
			}
			if d.Task.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", d.Task.Status, tt.wantStatus)
			}
			if (d.DeadLetter != nil) != (tt.want == ActionMoveToDLQ) {
				t.Errorf("DeadLetter = %v for action %s", d.DeadLetter, d.Action)
			}
			if d.Task.RetryCount < tt.retryCount {
				t.Errorf("RetryCount decreased from %d to %d", tt.retryCount, d.Task.RetryCount)
			}
		})
	}
}

func TestHandleTaskResult_CompleteStampsTime(t *testing.T) {
	conf := 0.9
	d := HandleTaskResult(&models.Task{ID: "t"}, agent.Result{Output: "x", Confidence: &conf}, retry.DefaultConfig(), testNow)
	if d.Task.CompletedAt == nil || !d.Task.CompletedAt.Equal(testNow) {
		t.Errorf("CompletedAt = %v, want %v", d.Task.CompletedAt, testNow)
	}
	if d.Task.Confidence == nil || *d.Task.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", d.Task.Confidence)
	}
}

func TestGetReadyAndFailedTasks(t *testing.T) {
	future := testNow.Add(time.Minute)
	past := testNow.Add(-time.Minute)
	tasks := []*models.Task{
		{ID: "queued", Status: models.TaskStatusQueued},
		{ID: "backing-off", Status: models.TaskStatusQueued, NextRetryAt: &future, RetryCount: 1},
		{ID: "due", Status: models.TaskStatusQueued, NextRetryAt: &past, RetryCount: 2},
		{ID: "processing", Status: models.TaskStatusProcessing},
		{ID: "exhausted", Status: models.TaskStatusHumanIntervention, RetryCount: 3},
	}

	ready := GetReadyTasks(tasks, testNow)
	if len(ready) != 2 || ready[0].ID != "queued" || ready[1].ID != "due" {
		t.Errorf("GetReadyTasks() = %v", ids(ready))
	}

	failed := GetFailedTasks(tasks, retry.DefaultConfig())
	if len(failed) != 1 || failed[0].ID != "exhausted" {
		t.Errorf("GetFailedTasks() = %v", ids(failed))
	}
}

func ids(tasks []*models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
