// Package orchestrator runs batches of agent tasks and drives the task queue.
//
// The orchestrator package provides functionality for:
//   - Dependency resolution: ordering tasks so dependencies run first
//   - Execution patterns: sequential, parallel, hierarchical and collaborative runs
//   - Queue driving: claiming ready queued tasks, executing them, and recording
//     the retry, dead-letter or human review decision
//
// Structural problems (missing IDs, unknown dependencies, cycles) are returned
// as errors before anything runs. Runtime failures are captured in the
// returned OrchestrationResult.
//
// Example usage:
//
//	agents := orchestrator.NewAgentRegistry()
//	agents.Register("research", researchExecutor)
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{Agents: agents},
//		orchestrator.WithPattern(models.PatternParallel),
//		orchestrator.WithDefaultTimeout(time.Minute))
//	result, err := orch.Orchestrate(ctx, tasks)
package orchestrator
