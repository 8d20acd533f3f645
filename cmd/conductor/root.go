package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
)

var (
	configPath string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Multi-agent task orchestration",
	Long: `Conductor runs teams of Claude agents over dependency-ordered plans and
drives a persistent task queue with retries, a dead-letter queue, circuit
breakers and human review.

Plans are YAML files listing tasks, the agent each is assigned to and the
tasks it depends on. They run in one of four patterns: sequential,
parallel, hierarchical or collaborative.

Queued tasks are added from batch files and processed by 'conductor queue
process', which can be paused or stopped by dropping 'pause' or 'kill'
files into the signals directory (see 'conductor signal').`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Write a debug log under the state directory")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the file given with --config, or the layered defaults.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
