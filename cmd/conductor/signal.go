package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/signals"
)

// controlContext returns a context cancelled by SIGINT, SIGTERM or a kill
// file in dir. A kill file left by an earlier process is removed first.
func controlContext(parent context.Context, dir string, opts ...signals.Option) (context.Context, *signals.Watcher, func(), error) {
	if err := signals.Remove(dir, signals.KillFile); err != nil {
		return nil, nil, nil, fmt.Errorf("clear stale kill signal: %w", err)
	}

	ctx, stopNotify := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	w, err := signals.New(dir, opts...)
	if err != nil {
		stopNotify()
		return nil, nil, nil, fmt.Errorf("watch signals: %w", err)
	}
	ctx, cancel := w.Context(ctx)

	return ctx, w, func() {
		cancel()
		w.Close()
		stopNotify()
	}, nil
}

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Control a running conductor process",
	Long: `Drop or remove control files in the signals directory.

  pause   Hold the queue driver after its current tick
  resume  Let a paused driver continue
  kill    Cancel a running plan or queue driver
  clear   Remove all signal files
  status  Show which signals are set`,
}

var signalPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the queue driver",
	Args:  cobra.NoArgs,
	RunE:  sendSignal(signals.PauseFile, "Pause signal sent"),
}

var signalKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Cancel the running process",
	Args:  cobra.NoArgs,
	RunE:  sendSignal(signals.KillFile, "Kill signal sent"),
}

var signalResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused queue driver",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := signals.Remove(cfg.SignalsDir(), signals.PauseFile); err != nil {
			return err
		}
		printStatus(cmd, "✓", "Pause signal removed", color.FgGreen)
		return nil
	},
}

var signalClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all signal files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, name := range []string{signals.KillFile, signals.PauseFile} {
			if err := signals.Remove(cfg.SignalsDir(), name); err != nil {
				return err
			}
		}
		printStatus(cmd, "✓", "Signals cleared", color.FgGreen)
		return nil
	},
}

var signalStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which signals are set",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := cfg.SignalsDir()
		for _, name := range []string{signals.KillFile, signals.PauseFile} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				printStatus(cmd, "●", name+" is set", color.FgYellow)
			} else {
				printStatus(cmd, "○", name+" is not set", color.FgGreen)
			}
		}
		return nil
	},
}

func init() {
	signalCmd.AddCommand(signalPauseCmd)
	signalCmd.AddCommand(signalResumeCmd)
	signalCmd.AddCommand(signalKillCmd)
	signalCmd.AddCommand(signalClearCmd)
	signalCmd.AddCommand(signalStatusCmd)
}

func sendSignal(name, message string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := signals.Send(cfg.SignalsDir(), name); err != nil {
			return err
		}
		printStatus(cmd, "✓", message, color.FgGreen)
		return nil
	}
}

// printStatus prints a status line with color
func printStatus(cmd *cobra.Command, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", c.Sprint(symbol), message)
}
