package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/state"
)

var (
	runsLimit     int
	runsOlderThan time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recorded orchestration runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *state.DB) error {
			runs, err := db.ListRuns(runsLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRuns(runs))
			return nil
		})
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the traces of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *state.DB) error {
			res, err := db.GetRun(args[0])
			if err != nil {
				return err
			}
			if res == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
			return nil
		})
	},
}

var runsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete runs older than a given age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *state.DB) error {
			n, err := db.PurgeOldRuns(runsOlderThan, now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d run(s)\n", n)
			return nil
		})
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
	runsPurgeCmd.Flags().DurationVar(&runsOlderThan, "older-than", 30*24*time.Hour, "Age of the runs to delete")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPurgeCmd)
}

func withStore(fn func(db *state.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
