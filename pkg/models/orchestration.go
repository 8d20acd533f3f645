package models

import "time"

// BroadcastAgent is the AssignedTo value that sends a task to every agent.
const BroadcastAgent = "*"

// Pattern selects how an orchestration run executes its tasks.
type Pattern string

const (
	// PatternSequential runs tasks one at a time in dependency order.
	PatternSequential Pattern = "sequential"
	// PatternParallel runs each wave of ready tasks concurrently.
	PatternParallel Pattern = "parallel"
	// PatternHierarchical runs a coordinator first, then its subordinates.
	PatternHierarchical Pattern = "hierarchical"
	// PatternCollaborative sends every task to all agents and picks a consensus answer.
	PatternCollaborative Pattern = "collaborative"
)

// Valid returns true if the pattern is a known value.
func (p Pattern) Valid() bool {
	switch p {
	case PatternSequential, PatternParallel, PatternHierarchical, PatternCollaborative:
		return true
	default:
		return false
	}
}

// OrchestrationTask is a scheduling request for one unit of agent work.
type OrchestrationTask struct {
	// ID uniquely identifies the task within a run.
	ID string `json:"id" yaml:"id"`
	// AssignedTo is the agent that runs the task, or BroadcastAgent.
	AssignedTo string `json:"assigned_to" yaml:"assigned_to"`
	// Input is the prompt or instruction handed to the agent.
	Input string `json:"input" yaml:"input"`
	// Priority orders tasks that become ready together.
	Priority Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	// Dependencies are IDs of tasks that must finish first.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Timeout bounds a single attempt. Zero uses the orchestrator default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ExecutionTrace records one attempted agent execution.
type ExecutionTrace struct {
	TaskID    string        `json:"task_id"`
	AgentID   string        `json:"agent_id"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the traced execution ended in an error.
func (t ExecutionTrace) Failed() bool {
	return t.Error != ""
}

// OrchestrationResult is the outcome of one orchestration run.
type OrchestrationResult struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`
	// Pattern is the execution pattern that was used.
	Pattern Pattern `json:"pattern"`
	// Success is true only if every task produced a result.
	Success bool `json:"success"`
	// Results maps task ID to output for tasks that succeeded.
	Results map[string]string `json:"results"`
	// Traces holds one entry per attempted execution, in recorded order.
	Traces []ExecutionTrace `json:"traces"`
	// TotalDuration is the wall time of the run.
	TotalDuration time.Duration `json:"total_duration"`
}
