package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sashabaranov/go-openai"
)

func TestEnsureUserFirst(t *testing.T) {
	intent := "be helpful"
	tests := []struct {
		name string
		in   []Message
		want []Message
	}{
		{
			name: "empty gets intent",
			in:   nil,
			want: []Message{{Role: RoleUser, Content: intent}},
		},
		{
			name: "user first unchanged",
			in:   []Message{{Role: RoleUser, Content: "hi"}},
			want: []Message{{Role: RoleUser, Content: "hi"}},
		},
		{
			name: "assistant first gets intent",
			in:   []Message{{Role: RoleAssistant, Content: "earlier reply"}, {Role: RoleUser, Content: "and?"}},
			want: []Message{{Role: RoleUser, Content: intent}, {Role: RoleAssistant, Content: "earlier reply"}, {Role: RoleUser, Content: "and?"}},
		},
		{
			name: "system first gets intent",
			in:   []Message{{Role: RoleSystem, Content: "rules"}},
			want: []Message{{Role: RoleUser, Content: intent}, {Role: RoleSystem, Content: "rules"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]Message(nil), tt.in...)
			got := EnsureUserFirst(in, intent)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.in, in); diff != "" {
				t.Fatalf("input mutated (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToResponse_Validation(t *testing.T) {
	if _, err := toResponse(openai.ChatCompletionResponse{}, "m"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("no choices: want ErrEmptyCompletion, got %v", err)
	}
	blank := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "  \n"}}}}
	if _, err := toResponse(blank, "m"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("blank: want ErrEmptyCompletion, got %v", err)
	}
	ok := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: " Hi there! "}}},
		Usage:   openai.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
	resp, err := toResponse(ok, "fallback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hi there!" || resp.Model != "fallback" || resp.TotalTokens != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got openai.ChatCompletionRequest
	var subscriptionKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		subscriptionKey = r.Header.Get("api-subscription-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "sarvam-m",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "Hi there!"}},
			},
		})
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("api-subscription-key", "secret")
	c := NewOpenAI(OpenAIOptions{APIKey: "secret", BaseURL: srv.URL, Model: "sarvam-m", Intent: "intent", MaxTokens: 100, Headers: h})

	resp, err := c.Generate(context.Background(), []Message{{Role: RoleAssistant, Content: "prev"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "Hi there!" || resp.Model != "sarvam-m" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if subscriptionKey != "secret" {
		t.Fatalf("custom header not forwarded: %q", subscriptionKey)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleUser || got.Messages[0].Content != "intent" {
		t.Fatalf("intent not prepended: %+v", got.Messages)
	}
	if got.MaxTokens != 100 {
		t.Fatalf("max tokens not forwarded: %d", got.MaxTokens)
	}
}

func TestOpenAIClient_GenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenAI(OpenAIOptions{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	if _, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "x"}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFactory_UnknownProvider(t *testing.T) {
	f := &Factory{}
	if _, err := f.CreateClient("nope", "m"); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	c, err := f.CreateClient("OpenAI", "m")
	if err != nil || c == nil {
		t.Fatalf("openai client: %v", err)
	}
}
