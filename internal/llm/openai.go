package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, Sarvam).
type OpenAIClient struct {
	client      *openai.Client
	model       string
	intent      string
	temperature float32
	maxTokens   int
}

type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Intent      string
	Temperature float32
	MaxTokens   int
	// Headers are added to every request, e.g. OpenRouter's HTTP-Referer.
	Headers    http.Header
	HTTPClient *http.Client
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(opts OpenAIOptions) *OpenAIClient {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(opts.BaseURL, "/chat/completions")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if len(opts.Headers) > 0 {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{Transport: headerTransport{rt: base, headers: opts.Headers}, Timeout: httpClient.Timeout}
	}
	config.HTTPClient = httpClient
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		model:       opts.Model,
		intent:      opts.Intent,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	messages = EnsureUserFirst(messages, c.intent)
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	return toResponse(resp, c.model)
}

// toResponse validates the completion payload: at least one choice whose
// message carries non-blank content.
func toResponse(resp openai.ChatCompletionResponse, fallbackModel string) (Response, error) {
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("no choices: %w", ErrEmptyCompletion)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return Response{}, fmt.Errorf("blank message in first choice: %w", ErrEmptyCompletion)
	}
	model := resp.Model
	if model == "" {
		model = fallbackModel
	}
	return Response{
		Content:          content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}
