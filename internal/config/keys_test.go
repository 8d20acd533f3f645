package config

import (
	"errors"
	"testing"
)

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		env        string
		cfg        *Config
		wantKey    string
		wantSource KeySource
		wantErr    error
	}{
		{
			name:       "environment wins",
			env:        "sk-ant-env-key",
			cfg:        &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}},
			wantKey:    "sk-ant-env-key",
			wantSource: KeySourceEnv,
		},
		{
			name:       "config file",
			cfg:        &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}},
			wantKey:    "sk-ant-config-key",
			wantSource: KeySourceConfig,
		},
		{
			name:       "unexpanded reference is ignored",
			cfg:        &Config{Anthropic: AnthropicConfig{APIKey: "${CONDUCTOR_MISSING_KEY}", UseBedrock: true}},
			wantSource: KeySourceBedrock,
		},
		{
			name:       "bedrock needs no key",
			cfg:        &Config{Anthropic: AnthropicConfig{UseBedrock: true}},
			wantSource: KeySourceBedrock,
		},
		{
			name:       "nothing configured",
			cfg:        &Config{},
			wantSource: KeySourceNone,
			wantErr:    ErrNoAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", tt.env)

			key, source, err := ResolveAPIKey(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if source != tt.wantSource {
				t.Errorf("source = %s, want %s", source, tt.wantSource)
			}
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty key", "", true},
		{"wrong prefix", "sk-openai-abcdefghijklmnop", true},
		{"too short", "sk-ant-abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-REDACTED", "sk-ant-...mnop"},
	}

	for _, tt := range tests {
		if got := MaskAPIKey(tt.key); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
