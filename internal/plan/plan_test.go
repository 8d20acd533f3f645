package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/pkg/models"
)

const hierarchicalPlan = `
name: case-0001
pattern: hierarchical
coordinator: plan
default_timeout: 90s
max_concurrency: 2
tasks:
  - id: plan
    assigned_to: lead
    input: Outline the defense strategy.
  - id: draft
    assigned_to: drafter
    input: Draft the answer.
    priority: high
    dependencies: [plan]
    timeout: 2m
  - id: research
    assigned_to: researcher
    input: Find precedents.
    dependencies: [plan]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	p, err := Load(writeFile(t, "plan.yaml", hierarchicalPlan))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.Name != "case-0001" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Pattern != models.PatternHierarchical {
		t.Errorf("Pattern = %q", p.Pattern)
	}
	if p.DefaultTimeout != 90*time.Second {
		t.Errorf("DefaultTimeout = %v", p.DefaultTimeout)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want 3", len(p.Tasks))
	}
	draft := p.Tasks[1]
	if draft.Timeout != 2*time.Minute {
		t.Errorf("draft timeout = %v, want 2m", draft.Timeout)
	}
	if draft.Priority != models.PriorityHigh {
		t.Errorf("draft priority = %q", draft.Priority)
	}
	if len(draft.Dependencies) != 1 || draft.Dependencies[0] != "plan" {
		t.Errorf("draft dependencies = %v", draft.Dependencies)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "unknown pattern",
			input: "pattern: swarm\ntasks:\n  - id: a\n    assigned_to: x\n",
			field: "pattern",
		},
		{
			name:  "no tasks",
			input: "name: empty\n",
			field: "tasks",
		},
		{
			name:  "coordinator not in plan",
			input: "coordinator: ghost\ntasks:\n  - id: a\n    assigned_to: x\n",
			field: "coordinator",
		},
		{
			name:  "negative timeout",
			input: "default_timeout: -1s\ntasks:\n  - id: a\n    assigned_to: x\n",
			field: "default_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("tasks:\n  - id: a\n    assigned_to: x\n    agent: y\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestOptions(t *testing.T) {
	p, err := Parse([]byte(hierarchicalPlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := len(p.Options()); got != 4 {
		t.Errorf("len(Options) = %d, want 4", got)
	}

	agents := orchestrator.NewAgentRegistry()
	o, err := orchestrator.New(orchestrator.RequiredConfig{Agents: agents}, p.Options()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o.Pattern() != models.PatternHierarchical {
		t.Errorf("Pattern = %q", o.Pattern())
	}

	bare := &Plan{Tasks: p.Tasks}
	if got := len(bare.Options()); got != 0 {
		t.Errorf("bare plan options = %d, want 0", got)
	}
}

func TestLoadBatch(t *testing.T) {
	path := writeFile(t, "batch.yaml", `
tasks:
  - id: t-1
    agent_id: deadlines
    type: calculate_deadline
    priority: critical
    max_retries: 5
    payload:
      process_number: "0001234-56.2026"
      start_date: "2026-01-05T00:00:00Z"
      days: 15
  - agent_id: contracts
    type: contract_review
    payload:
      document_id: doc-9
      text: Confidential settlement terms.
`)

	tasks, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("LoadBatch: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len = %d, want 2", len(tasks))
	}

	first := tasks[0]
	if first.ID != "t-1" || first.AgentID != "deadlines" || first.MaxRetries == nil || *first.MaxRetries != 5 {
		t.Errorf("first = %+v", first)
	}
	dl, ok := first.Payload.(*models.CalculateDeadlinePayload)
	if !ok {
		t.Fatalf("payload type = %T", first.Payload)
	}
	if dl.Days != 15 || dl.ProcessNumber != "0001234-56.2026" {
		t.Errorf("payload = %+v", dl)
	}
	if !dl.StartDate.Equal(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartDate = %v", dl.StartDate)
	}

	if tasks[1].ID != "" {
		t.Errorf("second ID = %q, want empty", tasks[1].ID)
	}
	if tasks[1].MaxRetries != nil {
		t.Errorf("second MaxRetries = %d, want unset", *tasks[1].MaxRetries)
	}
	if _, ok := tasks[1].Payload.(*models.ContractReviewPayload); !ok {
		t.Errorf("second payload type = %T", tasks[1].Payload)
	}
}

func TestLoadBatchUnknownType(t *testing.T) {
	path := writeFile(t, "batch.yaml", "tasks:\n  - agent_id: x\n    type: astrology\n    payload: {}\n")
	_, err := LoadBatch(path)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
