package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conductor/internal/graph"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// sequential runs tasks one at a time in topological order. A failed task
// halts its descendants; unrelated tasks keep running.
func (r *run) sequential(ctx context.Context) error {
	return r.inOrder(ctx, false)
}

// collaborative broadcasts every task to all agents, in topological order,
// and keeps the consensus answer.
func (r *run) collaborative(ctx context.Context) error {
	return r.inOrder(ctx, true)
}

func (r *run) inOrder(ctx context.Context, broadcast bool) error {
	order, err := r.graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}

	skipped := make(map[string]bool)
	for _, id := range order {
		if ctx.Err() != nil {
			r.o.opts.logger.Log("[orchestrator] run %s cancelled before %s: %v", r.id, id, ctx.Err())
			return nil
		}
		if skipped[id] {
			continue
		}
		t := r.graph.GetTask(id)
		traces, ok := r.runTask(ctx, t, t.Input, broadcast)
		r.appendTraces(traces...)
		if !ok {
			r.skipDescendants(r.graph, id, skipped)
		}
	}
	return nil
}

// parallel runs g wave by wave. Every task in a wave is dispatched
// concurrently and the wave is joined before the next one starts. Failures
// do not stop siblings or later waves, but a task whose dependency failed
// is not dispatched: it gets a failed trace naming that dependency.
func (r *run) parallel(ctx context.Context, g *graph.DependencyGraph) error {
	levels, err := g.Levels()
	if err != nil {
		return fmt.Errorf("resolve dependencies: %w", err)
	}

	for n, wave := range levels {
		if ctx.Err() != nil {
			r.o.opts.logger.Log("[orchestrator] run %s cancelled before wave %d: %v", r.id, n, ctx.Err())
			return nil
		}
		r.o.opts.logger.Log("[orchestrator] run %s: wave %d with %d tasks", r.id, n, len(wave))

		traces := make([][]models.ExecutionTrace, len(wave))
		var eg errgroup.Group
		if r.o.opts.maxConcurrency > 0 {
			eg.SetLimit(r.o.opts.maxConcurrency)
		}
		for i, id := range wave {
			t := g.GetTask(id)
			if dep, failed := r.failedDependency(t); failed {
				traces[i] = []models.ExecutionTrace{r.skip(t, dep)}
				continue
			}
			eg.Go(func() error {
				traces[i], _ = r.runTask(ctx, t, t.Input, false)
				return nil
			})
		}
		_ = eg.Wait()

		for _, tr := range traces {
			r.appendTraces(tr...)
		}
	}
	return nil
}

// coordinatorID returns the hierarchical coordinator: the configured one,
// or the first task of the batch.
func (r *run) coordinatorID() (string, error) {
	id := r.o.opts.coordinator
	if id == "" {
		id = r.batch[0].ID
	}
	t := r.graph.GetTask(id)
	if t == nil {
		return "", models.NewValidationError(id, "coordinator", "coordinator task not found in batch")
	}
	if len(t.Dependencies) > 0 {
		return "", models.NewValidationError(id, "coordinator", "coordinator must not have dependencies")
	}
	return id, nil
}

// hierarchical runs the coordinator first. Its output is appended to every
// subordinate's input and may reassign subordinates with delegate lines.
// Subordinates then run as parallel waves. If the coordinator fails, no
// subordinate is attempted.
func (r *run) hierarchical(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	coordID, err := r.coordinatorID()
	if err != nil {
		return err
	}

	coord := r.graph.GetTask(coordID)
	traces, ok := r.runTask(ctx, coord, coord.Input, false)
	r.appendTraces(traces...)
	if !ok {
		for _, t := range r.batch {
			if t.ID == coordID {
				continue
			}
			r.fail(t.ID)
			r.o.opts.emitter.Emit(OrchestratorEvent{
				Type:    EventTaskSkipped,
				RunID:   r.id,
				TaskID:  t.ID,
				Message: fmt.Sprintf("coordinator %s failed", coordID),
			})
		}
		return nil
	}

	r.mu.Lock()
	guidance := r.results[coordID]
	r.mu.Unlock()
	delegations := ParseDelegations(guidance)

	subs := make([]*models.OrchestrationTask, 0, len(r.batch)-1)
	for _, t := range r.batch {
		if t.ID == coordID {
			continue
		}
		cp := *t
		cp.Dependencies = nil
		for _, dep := range t.Dependencies {
			if dep != coordID {
				cp.Dependencies = append(cp.Dependencies, dep)
			}
		}
		if agentID, ok := delegations[t.ID]; ok && agentID != t.AssignedTo {
			r.o.opts.logger.Log("[orchestrator] run %s: coordinator delegated %s to %s", r.id, t.ID, agentID)
			cp.AssignedTo = agentID
		}
		cp.Input = annotate(t.Input, guidance)
		subs = append(subs, &cp)
	}

	sub := graph.New()
	sub.SetDebugLog(r.o.opts.logger.Log)
	if err := sub.Build(subs); err != nil {
		return fmt.Errorf("resolve subordinate dependencies: %w", err)
	}
	return r.parallel(ctx, sub)
}

var delegateLine = regexp.MustCompile(`(?im)^\s*delegate:\s*(\S+)\s*->\s*(\S+)\s*$`)

// ParseDelegations extracts "delegate: <task> -> <agent>" lines from a
// coordinator's output. Later lines for the same task win.
func ParseDelegations(output string) map[string]string {
	out := make(map[string]string)
	for _, m := range delegateLine.FindAllStringSubmatch(output, -1) {
		out[m[1]] = m[2]
	}
	return out
}

func annotate(input, guidance string) string {
	guidance = strings.TrimSpace(guidance)
	if guidance == "" {
		return input
	}
	if input == "" {
		return "Coordinator guidance:\n" + guidance
	}
	return input + "\n\nCoordinator guidance:\n" + guidance
}
