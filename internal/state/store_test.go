package state

import (
	"testing"
	"time"

	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/internal/retry"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var storeNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sampleTask(id string, status models.TaskStatus, created time.Time) *models.Task {
	conf := 0.75
	return &models.Task{
		ID:         id,
		AgentID:    "deadlines",
		Type:       models.TaskTypeCalculateDeadline,
		Priority:   models.PriorityHigh,
		Status:     status,
		Payload:    &models.CalculateDeadlinePayload{ProcessNumber: "0001234-56.2025.8.19.0001", StartDate: created, Days: 15},
		CreatedAt:  created,
		RetryCount: 1,
		LastError:  "timeout",
		Confidence: &conf,
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	tasks := []*models.Task{
		sampleTask("t2", models.TaskStatusProcessing, storeNow.Add(time.Minute)),
		sampleTask("t1", models.TaskStatusQueued, storeNow),
	}
	dead := models.DeadLetterTask{
		Task:         *sampleTask("t0", models.TaskStatusFailed, storeNow.Add(-time.Hour)),
		MovedToDLQAt: storeNow.Add(-time.Minute),
		FinalError:   "tribunal site down",
	}

	if err := db.SaveSnapshot(tasks, []models.DeadLetterTask{dead}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	gotTasks, gotDLQ, err := db.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(gotTasks) != 2 || gotTasks[0].ID != "t1" || gotTasks[1].ID != "t2" {
		t.Fatalf("tasks = %v, want t1, t2 by creation time", gotTasks)
	}
	p, ok := gotTasks[0].Payload.(*models.CalculateDeadlinePayload)
	if !ok || p.Days != 15 {
		t.Errorf("payload = %#v, want deadline payload", gotTasks[0].Payload)
	}
	if gotTasks[0].Confidence == nil || *gotTasks[0].Confidence != 0.75 {
		t.Errorf("confidence not preserved: %v", gotTasks[0].Confidence)
	}
	if len(gotDLQ) != 1 || gotDLQ[0].FinalError != "tribunal site down" || !gotDLQ[0].MovedToDLQAt.Equal(dead.MovedToDLQAt) {
		t.Errorf("dlq = %+v", gotDLQ)
	}

	// A second save replaces the first.
	if err := db.SaveSnapshot(tasks[:1], nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	gotTasks, gotDLQ, _ = db.LoadSnapshot()
	if len(gotTasks) != 1 || len(gotDLQ) != 0 {
		t.Errorf("after replace: %d tasks, %d dead letters; want 1, 0", len(gotTasks), len(gotDLQ))
	}
}

func TestSaveAndRestoreQueue(t *testing.T) {
	db := setupTestDB(t)

	q := queue.New(retry.DefaultConfig())
	task := sampleTask("t1", "", storeNow)
	task.RetryCount = 0
	task.Confidence = nil
	if err := q.Enqueue(task, storeNow); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, _, err := q.Claim("t1", storeNow); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := SaveQueue(db, q); err != nil {
		t.Fatalf("SaveQueue failed: %v", err)
	}

	restored := queue.New(retry.DefaultConfig())
	if err := RestoreQueue(db, restored); err != nil {
		t.Fatalf("RestoreQueue failed: %v", err)
	}
	got, ok := restored.Get("t1")
	if !ok {
		t.Fatal("task t1 not restored")
	}
	if got.Status != models.TaskStatusQueued {
		t.Errorf("Status = %s, want queued after restoring an in-flight task", got.Status)
	}
}

func TestRuns(t *testing.T) {
	db := setupTestDB(t)

	result := &models.OrchestrationResult{
		RunID:   "run-1",
		Pattern: models.PatternParallel,
		Success: false,
		Results: map[string]string{"A": "ok"},
		Traces: []models.ExecutionTrace{
			{TaskID: "A", AgentID: "research", StartTime: storeNow, Duration: 120 * time.Millisecond, Output: "ok"},
			{TaskID: "B", AgentID: "drafts", StartTime: storeNow, Duration: time.Second, Error: "timeout"},
		},
		TotalDuration: time.Second,
	}
	if err := db.SaveRun(result, storeNow); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	older := &models.OrchestrationResult{RunID: "run-0", Pattern: models.PatternSequential, Success: true, Results: map[string]string{}}
	if err := db.SaveRun(older, storeNow.Add(-48*time.Hour)); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil || got == nil {
		t.Fatalf("GetRun = %v, %v", got, err)
	}
	if got.Pattern != models.PatternParallel || got.Success || got.Results["A"] != "ok" {
		t.Errorf("run = %+v", got)
	}
	if len(got.Traces) != 2 || got.Traces[1].Error != "timeout" || got.Traces[0].Duration != 120*time.Millisecond {
		t.Errorf("traces = %+v", got.Traces)
	}

	if missing, err := db.GetRun("nope"); err != nil || missing != nil {
		t.Errorf("GetRun(nope) = %v, %v; want nil, nil", missing, err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" || runs[0].Tasks != 2 {
		t.Errorf("ListRuns = %+v, want run-1 first with 2 tasks", runs)
	}

	n, err := db.PurgeOldRuns(24*time.Hour, storeNow)
	if err != nil || n != 1 {
		t.Fatalf("PurgeOldRuns = %d, %v; want 1", n, err)
	}
	if gone, _ := db.GetRun("run-0"); gone != nil {
		t.Error("run-0 should have been purged")
	}

	if err := db.SaveRun(&models.OrchestrationResult{}, storeNow); err == nil {
		t.Error("SaveRun without a run id should fail")
	}
}
