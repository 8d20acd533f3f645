package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/breaker"
	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// errNoAgents is returned when neither the config nor the plan names an agent.
var errNoAgents = errors.New("no agents configured: add an agents section to .conductor.yaml")

// app holds the components shared by the commands that execute agents.
type app struct {
	cfg      *config.Config
	out      io.Writer
	agents   *orchestrator.AgentRegistry
	breakers *breaker.Registry
	emitter  *orchestrator.EventEmitter
	logger   *orchestrator.DebugLogger
	claude   *agent.ClaudeExecutor

	printer   sync.WaitGroup
	closeOnce sync.Once
}

// appOptions selects how agents are backed.
type appOptions struct {
	// dryRun registers an echo executor instead of calling Claude.
	dryRun bool
	// extraAgents are registered alongside the configured agents in dry-run
	// mode so a plan can be tried before its agents are configured.
	extraAgents []string
}

// newApp wires agents, breakers, the event printer and the debug log.
func newApp(cfg *config.Config, out io.Writer, opts appOptions) (*app, error) {
	a := &app{
		cfg:    cfg,
		out:    &syncWriter{w: out},
		agents: orchestrator.NewAgentRegistry(),
		logger: orchestrator.NopLogger(),
	}
	if debugMode {
		a.logger = orchestrator.NewDebugLoggerForDir(cfg.State.Dir)
	}

	var exec agent.Executor
	if opts.dryRun {
		exec = dryRunExecutor()
	} else {
		key, _, err := config.ResolveAPIKey(cfg)
		if err != nil {
			a.logger.Close()
			return nil, err
		}
		claude, err := agent.NewClaudeExecutor(cfg.ClaudeConfig(key))
		if err != nil {
			a.logger.Close()
			return nil, fmt.Errorf("create claude executor: %w", err)
		}
		a.claude = claude
		exec = claude
	}

	ids := cfg.AgentIDs()
	if opts.dryRun {
		ids = mergeIDs(ids, opts.extraAgents)
	}
	if len(ids) == 0 {
		a.logger.Close()
		return nil, errNoAgents
	}
	for _, id := range ids {
		a.agents.Register(id, exec)
	}

	a.emitter = orchestrator.NewEventEmitter(cfg.Orchestrator.EventBuffer)
	if cfg.Breaker.Enabled {
		a.breakers = breaker.NewRegistry(cfg.BreakerSettings(),
			breaker.WithStateChange(orchestrator.BreakerEventHook(a.emitter)),
			breaker.WithDebugLog(a.logger.Log),
		)
	}

	a.printer.Add(1)
	go func() {
		defer a.printer.Done()
		for ev := range a.emitter.Events() {
			fmt.Fprintln(a.out, formatEvent(ev))
		}
	}()

	a.logger.Log("conductor started: agents=%v dry_run=%t breakers=%t", ids, opts.dryRun, a.breakers != nil)
	return a, nil
}

// orchestratorOptions returns the options derived from config. Plan options
// are appended by the caller and take precedence.
func (a *app) orchestratorOptions() []orchestrator.Option {
	opts := []orchestrator.Option{
		orchestrator.WithDefaultTimeout(a.cfg.Orchestrator.DefaultTimeout),
		orchestrator.WithMaxConcurrency(a.cfg.Orchestrator.MaxConcurrency),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithEmitter(a.emitter),
	}
	if a.cfg.Orchestrator.Pattern != "" {
		opts = append(opts, orchestrator.WithPattern(models.Pattern(a.cfg.Orchestrator.Pattern)))
	}
	if a.breakers != nil {
		opts = append(opts, orchestrator.WithBreakers(a.breakers, nil))
	}
	return opts
}

// close drains the event printer and releases the debug log. Only the
// first call has any effect.
func (a *app) close() {
	a.closeOnce.Do(func() {
		a.emitter.Close()
		a.printer.Wait()
		if a.claude != nil {
			tracker := a.claude.Tracker()
			in, out := tracker.Total()
			if tracker.Calls() > 0 {
				fmt.Fprintf(a.out, "Tokens: %d in / %d out over %d calls (~$%.4f)\n", in, out, tracker.Calls(), tracker.Cost())
			}
		}
		a.logger.Close()
	})
}

// syncWriter serializes writes from the event printer and the command.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// dryRunExecutor echoes the first line of the input back as the answer.
func dryRunExecutor() agent.Executor {
	return agent.ExecutorFunc(func(ctx context.Context, req agent.Request) agent.Result {
		line, _, _ := strings.Cut(strings.TrimSpace(req.Input), "\n")
		return agent.Succeeded(fmt.Sprintf("[dry-run %s] %s", req.AgentID, line))
	})
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if id == "" || id == models.BroadcastAgent || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// openStore opens and migrates the state database.
func openStore(cfg *config.Config) (*state.DB, error) {
	db, err := state.OpenWithDriver(cfg.State.Driver, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// loadQueue builds a queue from config and restores the stored snapshot.
func loadQueue(cfg *config.Config, db *state.DB, debug func(string, ...interface{})) (*queue.Queue, error) {
	hp, err := cfg.HumanPolicy()
	if err != nil {
		return nil, err
	}
	opts := []queue.Option{queue.WithHumanPolicy(hp)}
	if debug != nil {
		opts = append(opts, queue.WithDebugLog(debug))
	}
	q := queue.New(cfg.RetryPolicy(), opts...)
	if err := state.RestoreQueue(db, q); err != nil {
		return nil, err
	}
	return q, nil
}

func now() time.Time {
	return time.Now().UTC()
}
