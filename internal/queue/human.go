package queue

import (
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// HumanPolicy decides when a task must pause for human review.
type HumanPolicy struct {
	// Enabled turns the review gate on.
	Enabled bool
	// Sensitive flags task types that always need review. Nil disables the check.
	Sensitive *SensitiveDetector
	// MinConfidence pauses tasks whose last reported confidence is below it.
	MinConfidence float64
	// StrictAgents lists agents whose every task needs review.
	StrictAgents map[string]bool
	// AutoResumeAfter releases a touched task once this much time has passed.
	AutoResumeAfter time.Duration
}

// DefaultHumanPolicy returns the review policy used when none is configured.
func DefaultHumanPolicy() HumanPolicy {
	return HumanPolicy{
		Enabled:         true,
		Sensitive:       NewSensitiveDetector(),
		MinConfidence:   0.6,
		StrictAgents:    map[string]bool{},
		AutoResumeAfter: 24 * time.Hour,
	}
}

// ShouldPauseForHuman reports whether task needs human review and why.
// maxRetries is the limit applied when the task does not set its own.
func (p HumanPolicy) ShouldPauseForHuman(task *models.Task, maxRetries int) (bool, string) {
	return p.check(task, maxRetries, true)
}

func (p HumanPolicy) check(task *models.Task, maxRetries int, includeRetries bool) (bool, string) {
	if !p.Enabled {
		return false, ""
	}
	if task.Priority == models.PriorityCritical {
		return true, "critical priority"
	}
	if task.Confidence != nil && *task.Confidence < p.MinConfidence {
		return true, "low confidence"
	}
	if includeRetries && task.RetryCount >= task.EffectiveMaxRetries(maxRetries) {
		return true, "retries exhausted"
	}
	if ok, reason := p.Sensitive.IsSensitiveWithReason(task.Type); ok {
		return true, reason
	}
	if p.StrictAgents[task.AgentID] {
		return true, "agent requires human review"
	}
	return false, ""
}

// CanResumeAfterHuman reports whether task may run again without further
// human action.
func (p HumanPolicy) CanResumeAfterHuman(task *models.Task, now time.Time) bool {
	if task.ResumeAfterHuman {
		return true
	}
	if task.Status == models.TaskStatusHumanIntervention && task.HumanTouchedAt != nil {
		after := p.AutoResumeAfter
		if after <= 0 {
			after = 24 * time.Hour
		}
		return now.Sub(*task.HumanTouchedAt) > after
	}
	return task.Status == models.TaskStatusQueued
}
