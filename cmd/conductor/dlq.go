package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/internal/state"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered tasks",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in the dead-letter queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQueue(func(cfg *config.Config, db *state.DB, q *queue.Queue) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderDeadLetters(q.DeadLetters()))
			return nil
		})
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay <task-id>",
	Short: "Queue a dead-lettered task for one more human-approved attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQueue(cmd, func(q *queue.Queue) error {
			return q.ReplayDeadLetter(args[0], now())
		}, "Replayed "+args[0])
	},
}

func init() {
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqReplayCmd)
}
