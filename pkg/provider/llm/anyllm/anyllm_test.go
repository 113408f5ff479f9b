package anyllm

import (
	"testing"

	"github.com/phonio-ai/phonio/pkg/provider/llm"
	"github.com/phonio-ai/phonio/pkg/types"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemPromptFirst checks that the system prompt is injected
// before the conversation history.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Answer YES or NO.",
		Messages: []types.Message{
			{Role: "user", Content: "play some jazz"},
		},
	})

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("expected first message role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("expected second message role user, got %q", params.Messages[1].Role)
	}
	if params.Messages[1].ContentString() != "play some jazz" {
		t.Errorf("unexpected user content %q", params.Messages[1].ContentString())
	}
}

// TestBuildParams_OptionalFields checks temperature and max tokens mapping.
func TestBuildParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.3,
		MaxTokens:   8,
	})

	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v; want 0.3", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 8 {
		t.Errorf("max tokens = %v; want 8", params.MaxTokens)
	}
}

// TestBuildParams_ZeroValuesOmitted checks that zero temperature and max
// tokens are left unset so the backend uses its defaults.
func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})

	if params.Temperature != nil {
		t.Errorf("temperature should be nil, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("max tokens should be nil, got %v", *params.MaxTokens)
	}
}

// ── Constructors ──────────────────────────────────────────────────────────────

// TestNew_MissingProviderName ensures constructor rejects an empty provider name.
func TestNew_MissingProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty provider name")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider ensures unknown provider names are rejected.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("quantumnet", "model-x")
	if err == nil {
		t.Fatal("expected error for unsupported provider name")
	}
}
