package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.RetryDelay != time.Second || cfg.Retry.MaxRetryDelay != 30*time.Second {
		t.Errorf("expected delays 1s/30s, got %v/%v", cfg.Retry.RetryDelay, cfg.Retry.MaxRetryDelay)
	}
	if !cfg.Retry.ExponentialBackoff {
		t.Error("expected exponential backoff to be on")
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.ResetTimeout != 30*time.Second || cfg.Breaker.HalfOpenMaxCalls != 3 {
		t.Errorf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
	if cfg.Orchestrator.DefaultTimeout != 60*time.Second {
		t.Errorf("expected default timeout 60s, got %v", cfg.Orchestrator.DefaultTimeout)
	}
	if cfg.HumanReview.MinConfidence != 0.6 || cfg.HumanReview.AutoResumeAfter != 24*time.Hour {
		t.Errorf("unexpected human review defaults: %+v", cfg.HumanReview)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_retries: 5
  retry_delay: 500ms
  max_retry_delay: 10s
  exponential_backoff: false
breaker:
  failure_threshold: 2
  reset_timeout: 1m
orchestrator:
  pattern: parallel
  default_timeout: 2m
  max_concurrency: 4
human_review:
  enabled: false
  min_confidence: 0.8
  sensitive_types: [risk_analysis]
state:
  dir: /var/lib/conductor
  driver: sqlite3
anthropic:
  api_key: test-key
  model: claude-3-5-haiku-latest
agents:
  - id: research
    system_prompt: You research precedents.
  - id: petitions
    human_interaction: strict
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Retry.MaxRetries != 5 || cfg.Retry.RetryDelay != 500*time.Millisecond {
		t.Errorf("unexpected retry section: %+v", cfg.Retry)
	}
	if cfg.Retry.ExponentialBackoff {
		t.Error("expected exponential backoff to be off")
	}
	if cfg.Breaker.FailureThreshold != 2 || cfg.Breaker.ResetTimeout != time.Minute {
		t.Errorf("unexpected breaker section: %+v", cfg.Breaker)
	}
	if cfg.Breaker.HalfOpenMaxCalls != 3 {
		t.Errorf("expected default half_open_max_calls 3, got %d", cfg.Breaker.HalfOpenMaxCalls)
	}
	if cfg.Orchestrator.Pattern != "parallel" || cfg.Orchestrator.MaxConcurrency != 4 {
		t.Errorf("unexpected orchestrator section: %+v", cfg.Orchestrator)
	}
	if cfg.HumanReview.Enabled || cfg.HumanReview.MinConfidence != 0.8 {
		t.Errorf("unexpected human review section: %+v", cfg.HumanReview)
	}
	if cfg.State.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %q", cfg.State.Driver)
	}
	if cfg.DatabasePath() != filepath.Join("/var/lib/conductor", "conductor.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if len(cfg.Agents) != 2 || cfg.Agents[1].HumanInteraction != "strict" {
		t.Fatalf("unexpected agents: %+v", cfg.Agents)
	}
	if ids := cfg.AgentIDs(); ids[0] != "petitions" || ids[1] != "research" {
		t.Errorf("AgentIDs() = %v, want sorted", ids)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown pattern", "orchestrator:\n  pattern: round-robin\n"},
		{"negative retries", "retry:\n  max_retries: -1\n"},
		{"confidence out of range", "human_review:\n  min_confidence: 1.5\n"},
		{"unknown driver", "state:\n  driver: postgres\n"},
		{"agent without id", "agents:\n  - system_prompt: hi\n"},
		{"duplicate agent", "agents:\n  - id: a\n  - id: a\n"},
		{"bad interaction mode", "agents:\n  - id: a\n    human_interaction: sometimes\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromPath(writeConfig(t, tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if result := expandEnv("${TEST_VAR}"); result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}
	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/conductor" {
		t.Errorf("expected /custom/config/conductor, got %q", dir)
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "cases", "2025")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	projectFile := filepath.Join(root, ".conductor.yaml")
	if err := os.WriteFile(projectFile, []byte("orchestrator:\n  pattern: hierarchical\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got := findProjectConfig()
	want, _ := filepath.EvalSymlinks(projectFile)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("findProjectConfig() = %q, want %q", got, projectFile)
	}
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("ANTHROPIC_API_KEY", "")
	userDir := filepath.Join(xdg, "conductor")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	userConfig := "orchestrator:\n  pattern: parallel\n  max_concurrency: 2\n"
	if err := os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(userConfig), 0644); err != nil {
		t.Fatal(err)
	}

	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, ".conductor.yaml"), []byte("orchestrator:\n  pattern: collaborative\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(project)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Orchestrator.Pattern != "collaborative" {
		t.Errorf("pattern = %q, want project value collaborative", cfg.Orchestrator.Pattern)
	}
	if cfg.Orchestrator.MaxConcurrency != 2 {
		t.Errorf("max_concurrency = %d, want user value 2", cfg.Orchestrator.MaxConcurrency)
	}
}

func TestConfig_HumanPolicy(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(rules, []byte("human_review:\n  sensitive_keywords: [audiencia]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.HumanReview.SensitiveTypes = []string{string(models.TaskTypeRiskAnalysis)}
	cfg.HumanReview.RulesFile = rules
	cfg.Agents = []AgentConfig{{ID: "petitions", HumanInteraction: "strict"}, {ID: "research"}}

	p, err := cfg.HumanPolicy()
	if err != nil {
		t.Fatalf("HumanPolicy() error = %v", err)
	}
	if !p.Enabled || p.MinConfidence != 0.6 {
		t.Errorf("unexpected policy: %+v", p)
	}
	if !p.Sensitive.IsSensitive(models.TaskTypeRiskAnalysis) {
		t.Error("risk_analysis should be sensitive")
	}
	if !p.Sensitive.IsSensitive("audiencia_prep") {
		t.Error("keyword from rules file should apply")
	}
	if !p.StrictAgents["petitions"] || p.StrictAgents["research"] {
		t.Errorf("StrictAgents = %v, want only petitions", p.StrictAgents)
	}

	cfg.HumanReview.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.HumanPolicy(); err == nil {
		t.Error("expected an error for a missing rules file")
	}
}

func TestConfig_Converters(t *testing.T) {
	cfg := Default()
	cfg.Agents = []AgentConfig{{ID: "research", SystemPrompt: "Find precedents."}, {ID: "plain"}}
	cfg.Anthropic.APIKey = "sk-ant-config"

	if rc := cfg.RetryPolicy(); rc.MaxRetries != 3 || rc.RetryDelay != time.Second || !rc.ExponentialBackoff {
		t.Errorf("RetryPolicy() = %+v", rc)
	}
	if bc := cfg.BreakerSettings(); bc.FailureThreshold != 5 || bc.HalfOpenMaxCalls != 3 {
		t.Errorf("BreakerSettings() = %+v", bc)
	}

	cc := cfg.ClaudeConfig("")
	if cc.APIKey != "sk-ant-config" || cc.MaxTokens != 4096 {
		t.Errorf("ClaudeConfig() = %+v", cc)
	}
	if cc.SystemPrompts["research"] != "Find precedents." {
		t.Errorf("SystemPrompts = %v", cc.SystemPrompts)
	}
	if _, ok := cc.SystemPrompts["plain"]; ok {
		t.Error("agents without a prompt should use the default")
	}
	if cc := cfg.ClaudeConfig("sk-ant-override"); cc.APIKey != "sk-ant-override" {
		t.Errorf("APIKey = %q, want override", cc.APIKey)
	}
	if cfg.SignalsDir() != filepath.Join(".conductor", "signals") {
		t.Errorf("SignalsDir() = %q", cfg.SignalsDir())
	}
}
