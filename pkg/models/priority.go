package models

// Priority represents the scheduling priority of a task.
type Priority string

const (
	// PriorityLow is for background work.
	PriorityLow Priority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityHigh is for time-sensitive work.
	PriorityHigh Priority = "high"
	// PriorityCritical always goes through human review before automated handling.
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Rank returns a sortable weight; higher runs first. An unset priority
// ranks as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium, "":
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}
