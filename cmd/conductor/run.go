package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/internal/plan"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	runPattern string
	runDryRun  bool
	runNoSave  bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Run an orchestration plan",
	Long: `Run every task of a plan with the configured agents.

Execution patterns:
  sequential     One task at a time in dependency order. A failed task
                 skips everything that depends on it.
  parallel       Tasks run in waves; each wave holds every task whose
                 dependencies finished.
  hierarchical   The coordinator task runs first. Its output guides the
                 other tasks and may reassign them with lines of the form
                 "delegate: <task> -> <agent>".
  collaborative  Every agent answers every task and the majority answer
                 wins.

The pattern comes from --pattern, then the plan, then the config.
Dropping a 'kill' file into the signals directory cancels the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().StringVar(&runPattern, "pattern", "", "Override the execution pattern")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Echo inputs instead of calling Claude")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not record the run in the state database")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, cmd.OutOrStdout(), appOptions{dryRun: runDryRun, extraAgents: planAgents(p)})
	if err != nil {
		return err
	}
	defer a.close()
	out := a.out

	opts := append(a.orchestratorOptions(), p.Options()...)
	if runPattern != "" {
		opts = append(opts, orchestrator.WithPattern(models.Pattern(runPattern)))
	}
	o, err := orchestrator.New(orchestrator.RequiredConfig{Agents: a.agents}, opts...)
	if err != nil {
		return err
	}

	ctx, _, stop, err := controlContext(cmd.Context(), cfg.SignalsDir())
	if err != nil {
		return err
	}
	defer stop()

	if p.Name != "" {
		fmt.Fprintf(out, "Running plan %s (%d tasks, %s)\n", p.Name, len(p.Tasks), o.Pattern())
	}
	res, err := o.Orchestrate(ctx, p.Tasks)
	if err != nil {
		return err
	}
	a.close()

	fmt.Fprintln(out, renderResult(res))
	if a.breakers != nil {
		if b := renderBreakers(a.breakers.Snapshots(), now()); b != "" {
			fmt.Fprintln(out, b)
		}
	}

	if !runNoSave {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveRun(res, now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved run %s\n", res.RunID)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("run %s cancelled", res.RunID)
	}
	if !res.Success {
		return fmt.Errorf("run %s failed", res.RunID)
	}
	return nil
}

// planAgents lists the agents a plan assigns work to.
func planAgents(p *plan.Plan) []string {
	ids := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		ids = append(ids, t.AssignedTo)
	}
	return mergeIDs(nil, ids)
}
