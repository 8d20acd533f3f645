package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Conductor configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/conductor/config.yaml
Project-specific overrides can be placed in .conductor.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			for _, key := range configKeys() {
				v, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "%s: %s\n", key, v)
			}
			fmt.Fprintf(out, "agents: %s\n", strings.Join(cfg.AgentIDs(), ", "))
			return nil
		case 1:
			v, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, v)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

// configField reads and writes one dot-notation key.
type configField struct {
	get func(c *config.Config) string
	set func(c *config.Config, v string) error
}

func durationField(p func(c *config.Config) *time.Duration) configField {
	return configField{
		get: func(c *config.Config) string { return p(c).String() },
		set: func(c *config.Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			*p(c) = d
			return nil
		},
	}
}

func intField(p func(c *config.Config) *int) configField {
	return configField{
		get: func(c *config.Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(c *config.Config) *bool) configField {
	return configField{
		get: func(c *config.Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid boolean: %w", err)
			}
			*p(c) = b
			return nil
		},
	}
}

func stringField(p func(c *config.Config) *string) configField {
	return configField{
		get: func(c *config.Config) string { return *p(c) },
		set: func(c *config.Config, v string) error {
			*p(c) = v
			return nil
		},
	}
}

var configFields = map[string]configField{
	"retry.max_retries":         intField(func(c *config.Config) *int { return &c.Retry.MaxRetries }),
	"retry.retry_delay":         durationField(func(c *config.Config) *time.Duration { return &c.Retry.RetryDelay }),
	"retry.max_retry_delay":     durationField(func(c *config.Config) *time.Duration { return &c.Retry.MaxRetryDelay }),
	"retry.exponential_backoff": boolField(func(c *config.Config) *bool { return &c.Retry.ExponentialBackoff }),

	"breaker.enabled":             boolField(func(c *config.Config) *bool { return &c.Breaker.Enabled }),
	"breaker.failure_threshold":   intField(func(c *config.Config) *int { return &c.Breaker.FailureThreshold }),
	"breaker.reset_timeout":       durationField(func(c *config.Config) *time.Duration { return &c.Breaker.ResetTimeout }),
	"breaker.half_open_max_calls": intField(func(c *config.Config) *int { return &c.Breaker.HalfOpenMaxCalls }),

	"orchestrator.pattern":         stringField(func(c *config.Config) *string { return &c.Orchestrator.Pattern }),
	"orchestrator.default_timeout": durationField(func(c *config.Config) *time.Duration { return &c.Orchestrator.DefaultTimeout }),
	"orchestrator.max_concurrency": intField(func(c *config.Config) *int { return &c.Orchestrator.MaxConcurrency }),
	"orchestrator.poll_interval":   durationField(func(c *config.Config) *time.Duration { return &c.Orchestrator.PollInterval }),
	"orchestrator.event_buffer":    intField(func(c *config.Config) *int { return &c.Orchestrator.EventBuffer }),

	"human_review.enabled":           boolField(func(c *config.Config) *bool { return &c.HumanReview.Enabled }),
	"human_review.auto_resume_after": durationField(func(c *config.Config) *time.Duration { return &c.HumanReview.AutoResumeAfter }),
	"human_review.min_confidence": {
		get: func(c *config.Config) string { return strconv.FormatFloat(c.HumanReview.MinConfidence, 'f', -1, 64) },
		set: func(c *config.Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number: %w", err)
			}
			c.HumanReview.MinConfidence = f
			return nil
		},
	},

	"state.dir":    stringField(func(c *config.Config) *string { return &c.State.Dir }),
	"state.driver": stringField(func(c *config.Config) *string { return &c.State.Driver }),

	"anthropic.model":       stringField(func(c *config.Config) *string { return &c.Anthropic.Model }),
	"anthropic.max_tokens":  intField(func(c *config.Config) *int { return &c.Anthropic.MaxTokens }),
	"anthropic.use_bedrock": boolField(func(c *config.Config) *bool { return &c.Anthropic.UseBedrock }),
	"anthropic.aws_region":  stringField(func(c *config.Config) *string { return &c.Anthropic.AWSRegion }),
	"anthropic.api_key": {
		get: func(c *config.Config) string {
			key, source, err := config.ResolveAPIKey(c)
			if err != nil {
				return "(not set)"
			}
			if key == "" {
				return fmt.Sprintf("(%s)", source)
			}
			return fmt.Sprintf("%s (%s)", config.MaskAPIKey(key), source)
		},
		set: func(c *config.Config, v string) error {
			if err := config.ValidateAPIKey(v); err != nil {
				return err
			}
			c.Anthropic.APIKey = v
			return nil
		},
	},
}

// configKeys returns every settable key in sorted order.
func configKeys() []string {
	keys := make([]string, 0, len(configFields))
	for k := range configFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	f, ok := configFields[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return f.get(cfg), nil
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	f, ok := configFields[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := f.set(cfg, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
