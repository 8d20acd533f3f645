package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/graph"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Orchestrator runs batches of orchestration tasks against registered agents.
// It is safe to call Orchestrate concurrently; each call owns its own run state.
type Orchestrator struct {
	agents *AgentRegistry
	opts   orchestratorOptions
}

// New creates an Orchestrator with the given required config and options.
func New(cfg RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if cfg.Agents == nil {
		return nil, errors.New("agent registry is required")
	}

	o := orchestratorOptions{
		pattern: models.PatternSequential,
		logger:  NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.pattern.Valid() {
		return nil, models.NewValidationError("", "pattern", fmt.Sprintf("unknown pattern %q", o.pattern))
	}
	if o.defaultTimeout < 0 {
		return nil, models.NewValidationError("", "timeout", "default timeout must not be negative")
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}

	return &Orchestrator{agents: cfg.Agents, opts: o}, nil
}

// Pattern returns the configured execution pattern.
func (o *Orchestrator) Pattern() models.Pattern {
	return o.opts.pattern
}

// Orchestrate runs the batch and returns the aggregated result.
//
// Structural problems are returned as errors before any agent is called:
// *models.ValidationError for malformed tasks, graph.ErrCycleDetected for
// circular dependencies, graph.ErrUnknownDependency for dangling references.
// Runtime failures (agent errors, timeouts, missing agents, open breakers)
// are recorded in the result's traces and leave Success false.
func (o *Orchestrator) Orchestrate(ctx context.Context, tasks []models.OrchestrationTask) (*models.OrchestrationResult, error) {
	batch, err := validateBatch(tasks)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	g.SetDebugLog(o.opts.logger.Log)
	if err := g.Build(batch); err != nil {
		return nil, fmt.Errorf("resolve dependencies: %w", err)
	}

	r := &run{
		o:       o,
		id:      uuid.NewString(),
		graph:   g,
		batch:   batch,
		results: make(map[string]string, len(batch)),
		failed:  make(map[string]bool),
	}

	if o.opts.pattern == models.PatternHierarchical && len(batch) > 0 {
		if _, err := r.coordinatorID(); err != nil {
			return nil, err
		}
	}

	start := o.opts.now()
	o.opts.logger.Log("[orchestrator] run %s: %d tasks, pattern %s", r.id, len(batch), o.opts.pattern)
	o.opts.emitter.Emit(OrchestratorEvent{
		Type:    EventRunStarted,
		RunID:   r.id,
		Message: fmt.Sprintf("%d tasks, pattern %s", len(batch), o.opts.pattern),
	})

	switch o.opts.pattern {
	case models.PatternParallel:
		err = r.parallel(ctx, r.graph)
	case models.PatternHierarchical:
		err = r.hierarchical(ctx)
	case models.PatternCollaborative:
		err = r.collaborative(ctx)
	default:
		err = r.sequential(ctx)
	}
	if err != nil {
		return nil, err
	}

	result := r.result(o.opts.now().Sub(start))
	o.opts.emitter.Emit(OrchestratorEvent{
		Type:     EventRunCompleted,
		RunID:    r.id,
		Message:  fmt.Sprintf("success=%t, %d/%d tasks produced results", result.Success, len(result.Results), len(batch)),
		Duration: result.TotalDuration,
	})
	o.opts.logger.Log("[orchestrator] run %s done: success=%t traces=%d", r.id, result.Success, len(result.Traces))
	return result, nil
}

// validateBatch checks the fields the graph cannot and returns private copies.
func validateBatch(tasks []models.OrchestrationTask) ([]*models.OrchestrationTask, error) {
	batch := make([]*models.OrchestrationTask, 0, len(tasks))
	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			return nil, models.NewValidationError("", "id", fmt.Sprintf("task at index %d has no id", i))
		}
		if t.AssignedTo == "" {
			return nil, models.NewValidationError(t.ID, "assigned_to", "is required")
		}
		if t.Timeout < 0 {
			return nil, models.NewValidationError(t.ID, "timeout", "must not be negative")
		}
		if t.Priority != "" && !t.Priority.Valid() {
			return nil, models.NewValidationError(t.ID, "priority", fmt.Sprintf("unknown priority %q", t.Priority))
		}
		t.Dependencies = append([]string(nil), t.Dependencies...)
		batch = append(batch, &t)
	}
	return batch, nil
}

// run is the state of a single Orchestrate call.
type run struct {
	o     *Orchestrator
	id    string
	graph *graph.DependencyGraph
	batch []*models.OrchestrationTask

	mu      sync.Mutex
	results map[string]string
	failed  map[string]bool
	traces  []models.ExecutionTrace
}

func (r *run) result(total time.Duration) *models.OrchestrationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make(map[string]string, len(r.results))
	for k, v := range r.results {
		results[k] = v
	}
	return &models.OrchestrationResult{
		RunID:         r.id,
		Pattern:       r.o.opts.pattern,
		Success:       len(r.results) == len(r.batch) && len(r.failed) == 0,
		Results:       results,
		Traces:        append([]models.ExecutionTrace(nil), r.traces...),
		TotalDuration: total,
	}
}

func (r *run) succeed(taskID, output string) {
	r.mu.Lock()
	r.results[taskID] = output
	r.mu.Unlock()
}

func (r *run) fail(taskID string) {
	r.mu.Lock()
	r.failed[taskID] = true
	r.mu.Unlock()
}

func (r *run) appendTraces(traces ...models.ExecutionTrace) {
	r.mu.Lock()
	r.traces = append(r.traces, traces...)
	r.mu.Unlock()
}

// skipDescendants marks everything downstream of a failed task as failed
// without attempting it.
func (r *run) skipDescendants(g *graph.DependencyGraph, taskID string, skipped map[string]bool) {
	for _, id := range g.GetDescendants(taskID) {
		if skipped[id] {
			continue
		}
		skipped[id] = true
		r.fail(id)
		r.o.opts.logger.Log("[orchestrator] run %s: skipping %s, upstream %s failed", r.id, id, taskID)
		r.o.opts.emitter.Emit(OrchestratorEvent{
			Type:    EventTaskSkipped,
			RunID:   r.id,
			TaskID:  id,
			Message: fmt.Sprintf("dependency %s failed", taskID),
		})
	}
}

// failedDependency returns the first dependency of t that failed in this run.
func (r *run) failedDependency(t *models.OrchestrationTask) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range t.Dependencies {
		if r.failed[dep] {
			return dep, true
		}
	}
	return "", false
}

// skip fails t without calling its agent and returns the trace for it.
func (r *run) skip(t *models.OrchestrationTask, dep string) models.ExecutionTrace {
	r.fail(t.ID)
	msg := fmt.Sprintf("dependency %s failed", dep)
	r.o.opts.logger.Log("[orchestrator] run %s: skipping %s, %s", r.id, t.ID, msg)
	r.o.opts.emitter.Emit(OrchestratorEvent{
		Type:    EventTaskSkipped,
		RunID:   r.id,
		TaskID:  t.ID,
		AgentID: t.AssignedTo,
		Message: msg,
	})
	return models.ExecutionTrace{
		TaskID:    t.ID,
		AgentID:   t.AssignedTo,
		StartTime: r.o.opts.now(),
		Error:     "skipped: " + msg,
	}
}

// timeoutFor returns the effective per-task timeout.
func (r *run) timeoutFor(t *models.OrchestrationTask) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return r.o.opts.defaultTimeout
}

// dispatch sends one task input to one agent and returns the trace and
// the classified result. It never returns an error: missing agents,
// open breakers and timeouts all become failed results.
func (r *run) dispatch(ctx context.Context, t *models.OrchestrationTask, agentID, input string) (models.ExecutionTrace, agent.Result) {
	opts := r.o.opts
	start := opts.now()

	opts.emitter.Emit(OrchestratorEvent{
		Type:    EventTaskStarted,
		RunID:   r.id,
		TaskID:  t.ID,
		AgentID: agentID,
	})

	var res agent.Result
	exec, ok := r.o.agents.Get(agentID)
	if !ok {
		res = agent.Failed(agent.Unavailable(agentID))
	} else {
		if opts.breakers != nil {
			exec = agent.Guard(exec, opts.breakers.Get(agentID), opts.fallback)
		}
		req := agent.Request{AgentID: agentID, TaskID: t.ID, Input: input, Attempt: 1}
		res = agent.Run(ctx, exec, req, r.timeoutFor(t))
	}

	trace := models.ExecutionTrace{
		TaskID:    t.ID,
		AgentID:   agentID,
		StartTime: start,
		Duration:  opts.now().Sub(start),
	}
	if res.Success() {
		trace.Output = res.Output
		opts.emitter.Emit(OrchestratorEvent{
			Type:     EventTaskCompleted,
			RunID:    r.id,
			TaskID:   t.ID,
			AgentID:  agentID,
			Duration: trace.Duration,
		})
	} else {
		trace.Error = res.Err.Error()
		r.o.opts.logger.Log("[orchestrator] run %s: task %s on %s failed: %v", r.id, t.ID, agentID, res.Err)
		opts.emitter.Emit(OrchestratorEvent{
			Type:     EventTaskFailed,
			RunID:    r.id,
			TaskID:   t.ID,
			AgentID:  agentID,
			Error:    res.Err,
			Duration: trace.Duration,
		})
	}
	return trace, res
}

// runTask executes a task against its assignee, or against every agent when
// it is broadcast, and records the outcome. The traces are returned rather
// than recorded so callers control their order.
func (r *run) runTask(ctx context.Context, t *models.OrchestrationTask, input string, broadcast bool) ([]models.ExecutionTrace, bool) {
	if broadcast || t.AssignedTo == models.BroadcastAgent {
		return r.broadcast(ctx, t, input)
	}
	trace, res := r.dispatch(ctx, t, t.AssignedTo, input)
	if !res.Success() {
		r.fail(t.ID)
		return []models.ExecutionTrace{trace}, false
	}
	r.succeed(t.ID, res.Output)
	return []models.ExecutionTrace{trace}, true
}

// broadcast sends t to every registered agent concurrently and stores the
// consensus answer. Traces come back in agent ID order.
func (r *run) broadcast(ctx context.Context, t *models.OrchestrationTask, input string) ([]models.ExecutionTrace, bool) {
	agentIDs := r.o.agents.IDs()
	traces := make([]models.ExecutionTrace, len(agentIDs))
	results := make([]agent.Result, len(agentIDs))

	var eg errgroup.Group
	if r.o.opts.maxConcurrency > 0 {
		eg.SetLimit(r.o.opts.maxConcurrency)
	}
	for i, agentID := range agentIDs {
		eg.Go(func() error {
			traces[i], results[i] = r.dispatch(ctx, t, agentID, input)
			return nil
		})
	}
	_ = eg.Wait()

	var answers []string
	for _, res := range results {
		if res.Success() {
			answers = append(answers, res.Output)
		}
	}
	winner, votes := Consensus(answers)
	if votes == 0 {
		r.fail(t.ID)
		r.o.opts.logger.Log("[orchestrator] run %s: no agent answered %s", r.id, t.ID)
		return traces, false
	}

	r.succeed(t.ID, winner)
	r.o.opts.emitter.Emit(OrchestratorEvent{
		Type:    EventConsensus,
		RunID:   r.id,
		TaskID:  t.ID,
		Message: fmt.Sprintf("%d of %d agents agreed", votes, len(agentIDs)),
	})
	return traces, true
}
