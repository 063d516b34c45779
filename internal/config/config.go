package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

const defaultSystemPrompt = "You are a friendly and helpful AI assistant on Discord. " +
	"You should be conversational, engaging, and provide useful responses. " +
	"Keep your messages concise but informative. Use Discord markdown when appropriate " +
	"(like **bold** for emphasis, `code` for code snippets, etc.). " +
	"Be respectful and maintain a positive tone in all interactions."

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN,required"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`
	AdminUserID   string `env:"ADMIN_USER_ID"`

	// LLM settings
	LLMProvider       LLMProvider   `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL" envDefault:"https://api.sarvam.ai/v1"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"sarvam-m"`
	Temperature       float32       `env:"TEMPERATURE" envDefault:"0.7"`
	MaxTokens         int           `env:"MAX_TOKENS" envDefault:"2000"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	YandexOAuthToken  string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID    string        `env:"YANDEX_FOLDER_ID"`

	// Prompts
	SystemPrompt     string `env:"SYSTEM_PROMPT"`
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH"`

	// Conversation context
	MaxHistoryMessages int `env:"MAX_HISTORY_MESSAGES" envDefault:"20"`
	ReplyContextDepth  int `env:"REPLY_CONTEXT_DEPTH" envDefault:"8"`

	// Output shaping
	MaxResponseLength   int `env:"MAX_RESPONSE_LENGTH" envDefault:"2000"`
	FileUploadThreshold int `env:"FILE_UPLOAD_THRESHOLD" envDefault:"8000"`

	// Fun features
	EnableAutoReactions     bool    `env:"ENABLE_AUTO_REACTIONS" envDefault:"true"`
	AutoReactionProbability float64 `env:"AUTO_REACTION_PROBABILITY" envDefault:"0.1"`
	DailyGreeting           bool    `env:"DAILY_GREETING" envDefault:"false"`
	GreetingSchedule        string  `env:"GREETING_SCHEDULE" envDefault:"0 9 * * *"`
	ReportSchedule          string  `env:"REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	// Storage
	AllowlistFilePath string `env:"ALLOWLIST_FILE_PATH" envDefault:"data/chat_channel_memory.json"`
	LogFilePath       string `env:"LOG_FILE_PATH" envDefault:"logs/interactions.jsonl"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// New parses the process environment into a Config and validates it.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN must not be empty"))
	}
	if c.MaxHistoryMessages < 1 {
		errs = append(errs, fmt.Errorf("MAX_HISTORY_MESSAGES must be positive, got %d", c.MaxHistoryMessages))
	}
	if c.ReplyContextDepth < 1 {
		errs = append(errs, fmt.Errorf("REPLY_CONTEXT_DEPTH must be positive, got %d", c.ReplyContextDepth))
	}
	if c.MaxResponseLength < 1 {
		errs = append(errs, fmt.Errorf("MAX_RESPONSE_LENGTH must be positive, got %d", c.MaxResponseLength))
	}
	if c.FileUploadThreshold < c.MaxResponseLength {
		errs = append(errs, fmt.Errorf("FILE_UPLOAD_THRESHOLD (%d) must not be below MAX_RESPONSE_LENGTH (%d)", c.FileUploadThreshold, c.MaxResponseLength))
	}
	if c.AutoReactionProbability < 0 || c.AutoReactionProbability > 1 {
		errs = append(errs, fmt.Errorf("AUTO_REACTION_PROBABILITY must be within [0,1], got %v", c.AutoReactionProbability))
	}
	if c.CompletionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("COMPLETION_TIMEOUT must be positive, got %s", c.CompletionTimeout))
	}
	if c.CommandPrefix == "" {
		errs = append(errs, errors.New("COMMAND_PREFIX must not be empty"))
	}
	return errors.Join(errs...)
}

// ReactionProbability is the effective auto-reaction probability; zero when reactions are disabled.
func (c *Config) ReactionProbability() float64 {
	if !c.EnableAutoReactions {
		return 0
	}
	return c.AutoReactionProbability
}

// DefaultSystemPrompt returns the prompt used when neither SYSTEM_PROMPT nor SYSTEM_PROMPT_PATH provide one.
func DefaultSystemPrompt() string { return defaultSystemPrompt }
