package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/internal/plan"
	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/internal/signals"
	"github.com/ShayCichocki/conductor/internal/state"
)

var (
	processOnce     bool
	processDryRun   bool
	processInterval time.Duration
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the persistent task queue",
	Long: `Add, inspect and process queued tasks.

Failed tasks are retried with exponential backoff. Tasks that exhaust
their retries move to the dead-letter queue (see 'conductor dlq').
Sensitive, low-confidence or strictly supervised tasks wait for a human;
'queue touch' records that someone looked at a task and 'queue resume'
releases it.`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <batch.yaml>...",
	Short: "Enqueue the tasks of one or more batch files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQueueAdd,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(cfg *config.Config, db *state.DB, q *queue.Queue) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderTasks(q.Snapshot()))
			return nil
		})
	},
}

var queueMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show queue health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(cfg *config.Config, db *state.DB, q *queue.Queue) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderMetrics(q.Metrics()))
			return nil
		})
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Execute ready tasks until stopped",
	Long: `Claim every ready task, run it with its agent and record the outcome,
then wait for the poll interval and repeat. The queue is saved after every
pass.

Stop with Ctrl-C or 'conductor signal kill'. 'conductor signal pause'
holds processing until 'conductor signal resume'.`,
	Args: cobra.NoArgs,
	RunE: runQueueProcess,
}

var queueResumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Release a task waiting for human review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQueue(cmd, func(q *queue.Queue) error {
			return q.Resume(args[0], now())
		}, "Resumed "+args[0])
	},
}

var queueTouchCmd = &cobra.Command{
	Use:   "touch <task-id>",
	Short: "Record that a human looked at a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQueue(cmd, func(q *queue.Queue) error {
			return q.Touch(args[0], now())
		}, "Touched "+args[0])
	},
}

func init() {
	queueProcessCmd.Flags().BoolVar(&processOnce, "once", false, "Run a single pass and exit")
	queueProcessCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Echo inputs instead of calling Claude")
	queueProcessCmd.Flags().DurationVar(&processInterval, "interval", 0, "Poll interval (default from config)")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueMetricsCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueResumeCmd)
	queueCmd.AddCommand(queueTouchCmd)
}

// withQueue opens the store, restores the queue and calls fn.
func withQueue(fn func(cfg *config.Config, db *state.DB, q *queue.Queue) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	q, err := loadQueue(cfg, db, nil)
	if err != nil {
		return err
	}
	return fn(cfg, db, q)
}

// mutateQueue applies fn and saves the queue.
func mutateQueue(cmd *cobra.Command, fn func(q *queue.Queue) error, done string) error {
	return withQueue(func(cfg *config.Config, db *state.DB, q *queue.Queue) error {
		if err := fn(q); err != nil {
			return err
		}
		if err := state.SaveQueue(db, q); err != nil {
			return err
		}
		printStatus(cmd, "✓", done, color.FgGreen)
		return nil
	})
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	return withQueue(func(cfg *config.Config, db *state.DB, q *queue.Queue) error {
		added := 0
		for _, path := range args {
			tasks, err := plan.LoadBatch(path)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if t.ID == "" {
					t.ID = uuid.New().String()
				}
				if err := q.Enqueue(t, now()); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				added++
			}
		}
		if err := state.SaveQueue(db, q); err != nil {
			return err
		}
		printStatus(cmd, "✓", fmt.Sprintf("Enqueued %d task(s)", added), color.FgGreen)
		return nil
	})
}

func runQueueProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := newApp(cfg, cmd.OutOrStdout(), appOptions{dryRun: processDryRun})
	if err != nil {
		return err
	}
	defer a.close()
	out := a.out

	q, err := loadQueue(cfg, db, a.logger.Log)
	if err != nil {
		return err
	}
	o, err := orchestrator.New(orchestrator.RequiredConfig{Agents: a.agents}, a.orchestratorOptions()...)
	if err != nil {
		return err
	}

	pause := orchestrator.NewPauseController()
	ctx, _, stop, err := controlContext(cmd.Context(), cfg.SignalsDir(), signals.WithPauseFunc(func(paused bool) {
		if paused {
			pause.Pause()
		} else {
			pause.Resume()
		}
	}))
	if err != nil {
		return err
	}
	defer stop()

	var saveErr error
	wasPaused := false
	report := func(rep orchestrator.TickReport) {
		if err := state.SaveQueue(db, q); err != nil && saveErr == nil {
			saveErr = err
		}
		if rep.Paused && wasPaused {
			return
		}
		wasPaused = rep.Paused
		if line := summarizeTick(rep); line != "" {
			fmt.Fprintln(out, line)
		}
	}
	driver := orchestrator.NewDriver(q, o, orchestrator.WithPauseController(pause), orchestrator.WithTickHook(report))

	if processOnce {
		rep, err := driver.Tick(ctx, now())
		if err != nil {
			return err
		}
		report(rep)
	} else {
		interval := processInterval
		if interval <= 0 {
			interval = cfg.Orchestrator.PollInterval
		}
		fmt.Fprintf(out, "Processing queue every %s (Ctrl-C to stop)\n", interval)
		if err := driver.Run(ctx, interval); err != nil {
			return err
		}
	}
	if saveErr != nil {
		return fmt.Errorf("save queue: %w", saveErr)
	}

	a.close()
	fmt.Fprintln(out, renderMetrics(q.Metrics()))
	return nil
}

// summarizeTick returns a one-line summary, or "" for an idle tick.
func summarizeTick(rep orchestrator.TickReport) string {
	if rep.Paused {
		return color.YellowString("paused")
	}
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(len(rep.Resumed), "resumed")
	add(len(rep.Completed), "completed")
	add(len(rep.Retried), "retrying")
	add(len(rep.DeadLettered), "dead-lettered")
	add(len(rep.HumanReview), "awaiting review")
	if len(parts) == 0 {
		return ""
	}
	return now().Local().Format("15:04:05") + " " + strings.Join(parts, ", ")
}
