package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Driver moves queued tasks through their lifecycle: it claims ready tasks,
// executes them with the orchestrator's agents, breakers and timeout, and
// records each result so the queue can complete, retry, dead-letter or
// pause the task.
type Driver struct {
	queue  *queue.Queue
	orch   *Orchestrator
	pause  *PauseController
	onTick func(TickReport)
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPauseController makes the driver honor p.
func WithPauseController(p *PauseController) DriverOption {
	return func(d *Driver) {
		d.pause = p
	}
}

// WithTickHook calls fn after every tick made by Run.
func WithTickHook(fn func(TickReport)) DriverOption {
	return func(d *Driver) {
		d.onTick = fn
	}
}

// NewDriver creates a Driver over q that executes through o.
func NewDriver(q *queue.Queue, o *Orchestrator, opts ...DriverOption) *Driver {
	d := &Driver{queue: q, orch: o}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TickReport lists what happened to each task during one tick.
type TickReport struct {
	Paused       bool
	Resumed      []string
	Completed    []string
	Retried      []string
	DeadLettered []string
	HumanReview  []string
}

// Attempted returns the number of tasks executed during the tick.
func (r TickReport) Attempted() int {
	return len(r.Completed) + len(r.Retried) + len(r.DeadLettered)
}

// Tick runs one scheduling pass at instant now. Tasks whose human review
// window has passed are released first. Unless paused, every ready task is
// claimed, the claimed tasks run concurrently, and their results are
// recorded in claim order.
func (d *Driver) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	var rep TickReport
	emitter := d.orch.opts.emitter

	for _, id := range d.queue.AutoResume(now) {
		rep.Resumed = append(rep.Resumed, id)
		emitter.Emit(OrchestratorEvent{Type: EventTaskResumed, TaskID: id, Timestamp: now})
	}

	if d.pause.IsPaused() {
		rep.Paused = true
		return rep, nil
	}

	var claimed []*models.Task
	for _, t := range d.queue.Ready(now) {
		if ctx.Err() != nil {
			break
		}
		task, ok, err := d.queue.Claim(t.ID, now)
		if err != nil {
			return rep, fmt.Errorf("claim %s: %w", t.ID, err)
		}
		if !ok {
			rep.HumanReview = append(rep.HumanReview, task.ID)
			emitter.Emit(OrchestratorEvent{
				Type:      EventTaskHumanReview,
				TaskID:    task.ID,
				AgentID:   task.AgentID,
				Message:   "paused before execution",
				Timestamp: now,
			})
			continue
		}
		claimed = append(claimed, task)
	}

	results := make([]agent.Result, len(claimed))
	var eg errgroup.Group
	if n := d.orch.opts.maxConcurrency; n > 0 {
		eg.SetLimit(n)
	}
	for i, task := range claimed {
		eg.Go(func() error {
			results[i] = d.execute(ctx, task)
			return nil
		})
	}
	_ = eg.Wait()

	for i, task := range claimed {
		dec, err := d.queue.Record(task.ID, results[i], now)
		if err != nil {
			return rep, fmt.Errorf("record %s: %w", task.ID, err)
		}
		ev := OrchestratorEvent{TaskID: task.ID, AgentID: task.AgentID, Error: results[i].Err, Timestamp: now}
		switch dec.Action {
		case queue.ActionComplete:
			rep.Completed = append(rep.Completed, task.ID)
			continue
		case queue.ActionRetry:
			rep.Retried = append(rep.Retried, task.ID)
			ev.Type = EventTaskRetry
			ev.Message = fmt.Sprintf("retry %d at %s", dec.Task.RetryCount, dec.Task.NextRetryAt.Format(time.RFC3339))
		case queue.ActionMoveToDLQ:
			rep.DeadLettered = append(rep.DeadLettered, task.ID)
			ev.Type = EventTaskDeadLettered
			ev.Message = dec.DeadLetter.FinalError
		case queue.ActionHumanReview:
			rep.HumanReview = append(rep.HumanReview, task.ID)
			ev.Type = EventTaskHumanReview
			ev.Message = dec.Reason
		}
		emitter.Emit(ev)
	}

	d.orch.opts.logger.Log("[driver] tick %s: %d claimed, %d completed, %d retried, %d dead-lettered, %d for review",
		now.Format(time.RFC3339), len(claimed), len(rep.Completed), len(rep.Retried), len(rep.DeadLettered), len(rep.HumanReview))
	return rep, nil
}

// Run ticks every interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep, err := d.Tick(ctx, d.orch.opts.now())
		if err != nil {
			return err
		}
		if d.onTick != nil {
			d.onTick(rep)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// execute runs one claimed task against its agent.
func (d *Driver) execute(ctx context.Context, task *models.Task) agent.Result {
	opts := d.orch.opts
	start := opts.now()
	opts.emitter.Emit(OrchestratorEvent{Type: EventTaskStarted, TaskID: task.ID, AgentID: task.AgentID})

	var res agent.Result
	exec, ok := d.orch.agents.Get(task.AgentID)
	if !ok {
		res = agent.Failed(agent.Unavailable(task.AgentID))
	} else {
		if opts.breakers != nil {
			exec = agent.Guard(exec, opts.breakers.Get(task.AgentID), opts.fallback)
		}
		req := agent.Request{
			AgentID: task.AgentID,
			TaskID:  task.ID,
			Input:   describeTask(task),
			Payload: task.Payload,
			Attempt: task.RetryCount + 1,
		}
		res = agent.Run(ctx, exec, req, opts.defaultTimeout)
	}

	ev := OrchestratorEvent{TaskID: task.ID, AgentID: task.AgentID, Duration: opts.now().Sub(start)}
	if res.Success() {
		ev.Type = EventTaskCompleted
	} else {
		ev.Type = EventTaskFailed
		ev.Error = res.Err
		d.orch.opts.logger.Log("[driver] %s attempt %d failed: %v", task.ID, task.RetryCount+1, res.Err)
	}
	opts.emitter.Emit(ev)
	return res
}

// describeTask renders a queued task as an agent prompt.
func describeTask(task *models.Task) string {
	payload := "{}"
	if task.Payload != nil {
		if raw, err := models.EncodePayload(task.Payload); err == nil {
			payload = string(raw)
		}
	}
	priority := task.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	return fmt.Sprintf("Task type: %s\nPriority: %s\nPayload: %s", task.Type, priority, payload)
}
