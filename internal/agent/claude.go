package agent

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

const defaultSystemPrompt = "You are a specialist agent in a legal practice team. " +
	"Answer the task directly. End your reply with a line of the form " +
	"\"CONFIDENCE: <0-1>\" estimating how reliable the answer is."

// ClaudeConfig contains configuration for a Claude-backed executor.
type ClaudeConfig struct {
	// Model is the Claude model to use. Empty uses Sonnet 4.
	Model anthropic.Model
	// MaxTokens caps the response length. Zero uses 4096.
	MaxTokens int64
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// SystemPrompts maps agent IDs to their system prompt.
	SystemPrompts map[string]string
	// RequestOptions are appended to the client options.
	RequestOptions []option.RequestOption
}

// ClaudeExecutor runs agent work through the Anthropic Messages API.
// Every agent ID shares one client; agents differ only by system prompt.
type ClaudeExecutor struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	prompts   map[string]string
	tracker   *TokenTracker
}

// NewClaudeExecutor creates a Claude-backed executor.
func NewClaudeExecutor(cfg ClaudeConfig) (*ClaudeExecutor, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, cfg.RequestOptions...)

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	prompts := make(map[string]string, len(cfg.SystemPrompts))
	for id, p := range cfg.SystemPrompts {
		prompts[id] = p
	}

	return &ClaudeExecutor{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		prompts:   prompts,
		tracker:   NewTokenTracker(),
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// cross-region inference profiles.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if m, ok := bedrockModels[model]; ok {
		return anthropic.Model(m)
	}
	return model
}

// Model returns the configured model name.
func (c *ClaudeExecutor) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker shared by all agents on this executor.
func (c *ClaudeExecutor) Tracker() *TokenTracker {
	return c.tracker
}

func (c *ClaudeExecutor) systemPrompt(agentID string) string {
	if p, ok := c.prompts[agentID]; ok && p != "" {
		return p
	}
	return defaultSystemPrompt
}

// Execute sends the request input as a single user message.
func (c *ClaudeExecutor) Execute(ctx context.Context, req Request) Result {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: c.systemPrompt(req.AgentID)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	})
	if err != nil {
		return Failed(fmt.Errorf("claude request: %w", err))
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}

	output, confidence := splitConfidence(sb.String())
	if output == "" {
		return Failed(fmt.Errorf("claude returned no text (stop reason %s)", resp.StopReason))
	}
	return Result{Output: output, Confidence: confidence}
}

var confidenceLine = regexp.MustCompile(`(?im)^\s*confidence:\s*([0-9]*\.?[0-9]+)\s*$`)

// splitConfidence strips a trailing "CONFIDENCE: x" line from text.
func splitConfidence(text string) (string, *float64) {
	locs := confidenceLine.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(text), nil
	}
	last := locs[len(locs)-1]
	v, err := strconv.ParseFloat(text[last[2]:last[3]], 64)
	if err != nil || v < 0 || v > 1 {
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(text[:last[0]] + text[last[1]:]), &v
}
