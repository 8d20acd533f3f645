// Package plan loads YAML files describing orchestration runs and batches of
// queued tasks.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Plan is an orchestration run read from a file.
//
//	name: case-0001
//	pattern: hierarchical
//	coordinator: plan
//	tasks:
//	  - id: plan
//	    assigned_to: lead
//	    input: Outline the defense strategy.
//	  - id: draft
//	    assigned_to: drafter
//	    dependencies: [plan]
//	    timeout: 2m
type Plan struct {
	Name           string                     `yaml:"name"`
	Pattern        models.Pattern             `yaml:"pattern,omitempty"`
	Coordinator    string                     `yaml:"coordinator,omitempty"`
	DefaultTimeout time.Duration              `yaml:"default_timeout,omitempty"`
	MaxConcurrency int                        `yaml:"max_concurrency,omitempty"`
	Tasks          []models.OrchestrationTask `yaml:"tasks"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a plan. Unknown fields are rejected.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := decodeStrict(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan-level settings. Task-level problems such as
// cycles are reported by the orchestrator.
func (p *Plan) Validate() error {
	if p.Pattern != "" && !p.Pattern.Valid() {
		return models.NewValidationError("", "pattern", fmt.Sprintf("unknown pattern %q", p.Pattern))
	}
	if len(p.Tasks) == 0 {
		return models.NewValidationError("", "tasks", "plan has no tasks")
	}
	if p.DefaultTimeout < 0 {
		return models.NewValidationError("", "default_timeout", "must not be negative")
	}
	if p.Coordinator != "" {
		found := false
		for _, t := range p.Tasks {
			if t.ID == p.Coordinator {
				found = true
				break
			}
		}
		if !found {
			return models.NewValidationError(p.Coordinator, "coordinator", "not a task in the plan")
		}
	}
	return nil
}

// Options returns orchestrator options for the settings the plan overrides.
func (p *Plan) Options() []orchestrator.Option {
	var opts []orchestrator.Option
	if p.Pattern != "" {
		opts = append(opts, orchestrator.WithPattern(p.Pattern))
	}
	if p.Coordinator != "" {
		opts = append(opts, orchestrator.WithCoordinator(p.Coordinator))
	}
	if p.DefaultTimeout > 0 {
		opts = append(opts, orchestrator.WithDefaultTimeout(p.DefaultTimeout))
	}
	if p.MaxConcurrency > 0 {
		opts = append(opts, orchestrator.WithMaxConcurrency(p.MaxConcurrency))
	}
	return opts
}

// QueuedTask is a queue task as written in a batch file. Payload holds the
// fields of the payload for Type.
type QueuedTask struct {
	ID         string          `yaml:"id,omitempty"`
	AgentID    string          `yaml:"agent_id"`
	Type       models.TaskType `yaml:"type"`
	Priority   models.Priority `yaml:"priority,omitempty"`
	MaxRetries *int            `yaml:"max_retries,omitempty"`
	Payload    map[string]any  `yaml:"payload"`
}

// Batch is a file of tasks to enqueue.
type Batch struct {
	Tasks []QueuedTask `yaml:"tasks"`
}

// LoadBatch reads a batch file and converts every entry to a task.
func LoadBatch(path string) ([]*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	var b Batch
	if err := decodeStrict(data, &b); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}

	tasks := make([]*models.Task, 0, len(b.Tasks))
	for i, qt := range b.Tasks {
		t, err := qt.Task()
		if err != nil {
			return nil, fmt.Errorf("batch task %d: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Task converts the entry to a queue task with a typed payload. The ID is
// left empty when not given so the caller can assign one.
func (qt QueuedTask) Task() (*models.Task, error) {
	data, err := json.Marshal(qt.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	envelope, err := json.Marshal(struct {
		Type models.TaskType `json:"type"`
		Data json.RawMessage `json:"data"`
	}{qt.Type, data})
	if err != nil {
		return nil, fmt.Errorf("encode payload envelope: %w", err)
	}
	payload, err := models.DecodePayload(envelope)
	if err != nil {
		return nil, err
	}

	return &models.Task{
		ID:         qt.ID,
		AgentID:    qt.AgentID,
		Type:       qt.Type,
		Priority:   qt.Priority,
		MaxRetries: qt.MaxRetries,
		Payload:    payload,
	}, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty document")
		}
		return err
	}
	return nil
}
