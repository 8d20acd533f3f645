package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func messagesServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okMessage = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "content": [{"type": "text", "text": "Deadline is 2025-03-14.\nCONFIDENCE: 0.85"}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 7}
}`

func newTestExecutor(t *testing.T, srv *httptest.Server) *ClaudeExecutor {
	t.Helper()
	exec, err := NewClaudeExecutor(ClaudeConfig{
		APIKey:        "test-key",
		SystemPrompts: map[string]string{"deadlines": "You compute deadlines."},
		RequestOptions: []option.RequestOption{
			option.WithBaseURL(srv.URL),
			option.WithMaxRetries(0),
		},
	})
	if err != nil {
		t.Fatalf("NewClaudeExecutor() error = %v", err)
	}
	return exec
}

func TestClaudeExecutor_Execute(t *testing.T) {
	var seen map[string]any
	srv := messagesServer(t, http.StatusOK, okMessage, &seen)
	exec := newTestExecutor(t, srv)

	res := exec.Execute(context.Background(), Request{AgentID: "deadlines", TaskID: "t1", Input: "compute"})
	if !res.Success() {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if res.Output != "Deadline is 2025-03-14." {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Confidence == nil || *res.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", res.Confidence)
	}

	in, out := exec.Tracker().Total()
	if in != 12 || out != 7 || exec.Tracker().Calls() != 1 {
		t.Errorf("tracker = (%d, %d, %d calls), want (12, 7, 1)", in, out, exec.Tracker().Calls())
	}

	system, _ := json.Marshal(seen["system"])
	if !strings.Contains(string(system), "You compute deadlines.") {
		t.Errorf("request system = %s, want agent prompt", system)
	}
}

func TestClaudeExecutor_APIError(t *testing.T) {
	srv := messagesServer(t, http.StatusInternalServerError,
		`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`, nil)
	exec := newTestExecutor(t, srv)

	res := exec.Execute(context.Background(), Request{AgentID: "x", Input: "compute"})
	if res.Success() {
		t.Fatal("Execute() should fail on a 500 response")
	}
	if !strings.Contains(res.Err.Error(), "claude request") {
		t.Errorf("error = %v, want wrapped claude request error", res.Err)
	}
}

func TestNewClaudeExecutor_NoAPIKey(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)
	os.Unsetenv("ANTHROPIC_API_KEY")

	if _, err := NewClaudeExecutor(ClaudeConfig{}); err == nil {
		t.Fatal("NewClaudeExecutor() should fail without API key")
	}
}

func TestNewClaudeExecutor_DefaultModel(t *testing.T) {
	exec, err := NewClaudeExecutor(ClaudeConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClaudeExecutor() error = %v", err)
	}
	if exec.Model() != anthropic.ModelClaudeSonnet4_20250514 {
		t.Errorf("Model() = %q", exec.Model())
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("translateModelForBedrock() = %q", got)
	}
	custom := anthropic.Model("custom-model")
	if translateModelForBedrock(custom) != custom {
		t.Error("unknown models should pass through unchanged")
	}
}

func TestSplitConfidence(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantText string
		wantConf float64
		hasConf  bool
	}{
		{"no line", "just text", "just text", 0, false},
		{"trailing line", "answer\nCONFIDENCE: 0.4", "answer", 0.4, true},
		{"lowercase", "answer\nconfidence: 1", "answer", 1, true},
		{"out of range", "answer\nCONFIDENCE: 7", "answer\nCONFIDENCE: 7", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, conf := splitConfidence(tt.in)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if (conf != nil) != tt.hasConf {
				t.Fatalf("conf = %v, hasConf %v", conf, tt.hasConf)
			}
			if conf != nil && *conf != tt.wantConf {
				t.Errorf("conf = %v, want %v", *conf, tt.wantConf)
			}
		})
	}
}
