package llm

import (
	"fmt"
	"net/http"
	"strings"

	"discord-chatter/internal/config"
)

const (
	ProviderOpenAI = "openai"
	ProviderYandex = "yandex"
)

// Factory creates LLM clients with consistent logic
type Factory struct {
	OpenaiAPIKey     string
	OpenaiBaseURL    string
	Temperature      float32
	MaxTokens        int
	YandexOAuthToken string
	YandexFolderID   string
	// Intent is sent as the opening user turn when a conversation does not start with one.
	Intent string
}

func NewFactory(cfg *config.Config, intent string) *Factory {
	return &Factory{
		OpenaiAPIKey:     cfg.OpenAIAPIKey,
		OpenaiBaseURL:    cfg.OpenAIBaseURL,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		YandexOAuthToken: cfg.YandexOAuthToken,
		YandexFolderID:   cfg.YandexFolderID,
		Intent:           intent,
	}
}

func (f *Factory) CreateClient(provider, model string) (Client, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		var headers http.Header
		// Sarvam authenticates with a subscription key header instead of a bearer token.
		if strings.Contains(f.OpenaiBaseURL, "sarvam.ai") {
			headers = http.Header{}
			headers.Set("api-subscription-key", f.OpenaiAPIKey)
		}
		return NewOpenAI(OpenAIOptions{
			APIKey:      f.OpenaiAPIKey,
			BaseURL:     f.OpenaiBaseURL,
			Model:       model,
			Intent:      f.Intent,
			Temperature: f.Temperature,
			MaxTokens:   f.MaxTokens,
			Headers:     headers,
		}), nil
	case ProviderYandex:
		return NewYandex(f.YandexOAuthToken, f.YandexFolderID, f.Intent)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}
