// Package config handles configuration loading and management for Conductor.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/viper"

	"github.com/ShayCichocki/conductor/internal/agent"
	"github.com/ShayCichocki/conductor/internal/breaker"
	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/internal/retry"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Config holds all configuration for Conductor.
type Config struct {
	Retry        RetryConfig        `mapstructure:"retry"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	HumanReview  HumanReviewConfig  `mapstructure:"human_review"`
	State        StateConfig        `mapstructure:"state"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Agents       []AgentConfig      `mapstructure:"agents"`
}

// RetryConfig holds the queue retry settings.
type RetryConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay      time.Duration `mapstructure:"max_retry_delay"`
	ExponentialBackoff bool          `mapstructure:"exponential_backoff"`
}

// BreakerConfig holds the circuit breaker settings shared by all agents.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls"`
}

// OrchestratorConfig holds orchestration settings.
type OrchestratorConfig struct {
	// Pattern is the default execution pattern for plans that do not set one.
	Pattern string `mapstructure:"pattern"`
	// DefaultTimeout applies to tasks without their own timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// MaxConcurrency bounds agent calls per wave. Zero is unbounded.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// PollInterval is how often the queue driver ticks.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// EventBuffer is the event channel capacity.
	EventBuffer int `mapstructure:"event_buffer"`
}

// HumanReviewConfig holds the human review gate settings.
type HumanReviewConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MinConfidence   float64       `mapstructure:"min_confidence"`
	AutoResumeAfter time.Duration `mapstructure:"auto_resume_after"`
	// SensitiveTypes and SensitiveKeywords extend the built-in rules.
	SensitiveTypes    []string `mapstructure:"sensitive_types"`
	SensitiveKeywords []string `mapstructure:"sensitive_keywords"`
	// RulesFile is an optional YAML file with more sensitive rules.
	RulesFile string `mapstructure:"rules_file"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Dir is the working directory for the database, logs and signal files.
	Dir string `mapstructure:"dir"`
	// Driver selects the SQLite driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// AgentConfig describes one registered agent.
type AgentConfig struct {
	ID           string `mapstructure:"id"`
	SystemPrompt string `mapstructure:"system_prompt"`
	// HumanInteraction is "auto" (default) or "strict". Strict agents have
	// every task reviewed by a human.
	HumanInteraction string `mapstructure:"human_interaction"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.conductor.yaml in current directory or parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.State.Dir = expandEnv(cfg.State.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	if c.Orchestrator.Pattern != "" && !models.Pattern(c.Orchestrator.Pattern).Valid() {
		return fmt.Errorf("orchestrator.pattern: unknown pattern %q", c.Orchestrator.Pattern)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.HumanReview.MinConfidence < 0 || c.HumanReview.MinConfidence > 1 {
		return fmt.Errorf("human_review.min_confidence must be between 0 and 1")
	}
	switch c.State.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("state.driver: unsupported driver %q", c.State.Driver)
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		switch a.HumanInteraction {
		case "", "auto", "strict":
		default:
			return fmt.Errorf("agents[%d]: unknown human_interaction %q", i, a.HumanInteraction)
		}
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("retry.max_retries", cfg.Retry.MaxRetries)
	v.Set("retry.retry_delay", cfg.Retry.RetryDelay.String())
	v.Set("retry.max_retry_delay", cfg.Retry.MaxRetryDelay.String())
	v.Set("retry.exponential_backoff", cfg.Retry.ExponentialBackoff)
	v.Set("breaker.enabled", cfg.Breaker.Enabled)
	v.Set("breaker.failure_threshold", cfg.Breaker.FailureThreshold)
	v.Set("breaker.reset_timeout", cfg.Breaker.ResetTimeout.String())
	v.Set("breaker.half_open_max_calls", cfg.Breaker.HalfOpenMaxCalls)
	v.Set("orchestrator.pattern", cfg.Orchestrator.Pattern)
	v.Set("orchestrator.default_timeout", cfg.Orchestrator.DefaultTimeout.String())
	v.Set("orchestrator.max_concurrency", cfg.Orchestrator.MaxConcurrency)
	v.Set("orchestrator.poll_interval", cfg.Orchestrator.PollInterval.String())
	v.Set("orchestrator.event_buffer", cfg.Orchestrator.EventBuffer)
	v.Set("human_review.enabled", cfg.HumanReview.Enabled)
	v.Set("human_review.min_confidence", cfg.HumanReview.MinConfidence)
	v.Set("human_review.auto_resume_after", cfg.HumanReview.AutoResumeAfter.String())
	v.Set("state.dir", cfg.State.Dir)
	v.Set("state.driver", cfg.State.Driver)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", "1s")
	v.SetDefault("retry.max_retry_delay", "30s")
	v.SetDefault("retry.exponential_backoff", true)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", "30s")
	v.SetDefault("breaker.half_open_max_calls", 3)

	v.SetDefault("orchestrator.pattern", string(models.PatternSequential))
	v.SetDefault("orchestrator.default_timeout", "60s")
	v.SetDefault("orchestrator.max_concurrency", 0)
	v.SetDefault("orchestrator.poll_interval", "1s")
	v.SetDefault("orchestrator.event_buffer", 100)

	v.SetDefault("human_review.enabled", true)
	v.SetDefault("human_review.min_confidence", 0.6)
	v.SetDefault("human_review.auto_resume_after", "24h")

	v.SetDefault("state.dir", ".conductor")
	v.SetDefault("state.driver", "sqlite")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_bedrock", false)
}

// getUserConfigDir returns the XDG config directory for Conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries:         3,
			RetryDelay:         time.Second,
			MaxRetryDelay:      30 * time.Second,
			ExponentialBackoff: true,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 3,
		},
		Orchestrator: OrchestratorConfig{
			Pattern:        string(models.PatternSequential),
			DefaultTimeout: 60 * time.Second,
			PollInterval:   time.Second,
			EventBuffer:    100,
		},
		HumanReview: HumanReviewConfig{
			Enabled:         true,
			MinConfidence:   0.6,
			AutoResumeAfter: 24 * time.Hour,
		},
		State: StateConfig{
			Dir:    ".conductor",
			Driver: "sqlite",
		},
		Anthropic: AnthropicConfig{
			MaxTokens: 4096,
		},
	}
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxRetries:         c.Retry.MaxRetries,
		RetryDelay:         c.Retry.RetryDelay,
		MaxRetryDelay:      c.Retry.MaxRetryDelay,
		ExponentialBackoff: c.Retry.ExponentialBackoff,
	}
}

// BreakerSettings converts the breaker section.
func (c *Config) BreakerSettings() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		ResetTimeout:     c.Breaker.ResetTimeout,
		HalfOpenMaxCalls: c.Breaker.HalfOpenMaxCalls,
	}
}

// HumanPolicy builds the review gate from the human_review section and the
// agents marked strict.
func (c *Config) HumanPolicy() (queue.HumanPolicy, error) {
	p := queue.DefaultHumanPolicy()
	p.Enabled = c.HumanReview.Enabled
	p.MinConfidence = c.HumanReview.MinConfidence
	if c.HumanReview.AutoResumeAfter > 0 {
		p.AutoResumeAfter = c.HumanReview.AutoResumeAfter
	}
	for _, t := range c.HumanReview.SensitiveTypes {
		p.Sensitive.AddType(models.TaskType(t))
	}
	for _, kw := range c.HumanReview.SensitiveKeywords {
		p.Sensitive.AddKeyword(kw)
	}
	if c.HumanReview.RulesFile != "" {
		if err := p.Sensitive.LoadConfig(c.HumanReview.RulesFile); err != nil {
			return p, fmt.Errorf("load human review rules: %w", err)
		}
	}
	for _, a := range c.Agents {
		if a.HumanInteraction == "strict" {
			p.StrictAgents[a.ID] = true
		}
	}
	return p, nil
}

// ClaudeConfig builds the Claude executor settings. apiKey overrides the
// configured key when non-empty.
func (c *Config) ClaudeConfig(apiKey string) agent.ClaudeConfig {
	if apiKey == "" {
		apiKey = c.Anthropic.APIKey
	}
	prompts := make(map[string]string, len(c.Agents))
	for _, a := range c.Agents {
		if a.SystemPrompt != "" {
			prompts[a.ID] = a.SystemPrompt
		}
	}
	return agent.ClaudeConfig{
		Model:         anthropic.Model(c.Anthropic.Model),
		MaxTokens:     int64(c.Anthropic.MaxTokens),
		APIKey:        apiKey,
		UseAWSBedrock: c.Anthropic.UseBedrock,
		AWSRegion:     c.Anthropic.AWSRegion,
		AWSProfile:    c.Anthropic.AWSProfile,
		SystemPrompts: prompts,
	}
}

// AgentIDs returns the configured agent IDs in sorted order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids
}

// DatabasePath returns the SQLite database location under the state dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.State.Dir, "conductor.db")
}

// SignalsDir returns the directory watched for kill and pause files.
func (c *Config) SignalsDir() string {
	return filepath.Join(c.State.Dir, "signals")
}
