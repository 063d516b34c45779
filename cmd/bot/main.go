package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"discord-chatter/internal/allowlist"
	"discord-chatter/internal/chunker"
	"discord-chatter/internal/config"
	"discord-chatter/internal/discord"
	"discord-chatter/internal/dispatcher"
	"discord-chatter/internal/history"
	"discord-chatter/internal/llm"
	"discord-chatter/internal/logging"
	"discord-chatter/internal/scheduler"
	"discord-chatter/internal/storage"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bot stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	systemPrompt := readSystemPrompt(cfg, logger)
	llmClient, err := llm.NewFactory(cfg, systemPrompt).CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		return err
	}

	var allowRepo allowlist.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := allowlist.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			logger.Warn("failed to init allowlist repo, chat channels will not persist", zap.Error(err))
		} else {
			allowRepo = repo
		}
	}
	allow := allowlist.New(allowRepo, logger.Named("allowlist"))

	var rec storage.Recorder = storage.Nop{}
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			logger.Warn("failed to init interaction log", zap.Error(err))
		} else {
			rec = fr
		}
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	platform := discord.NewPlatform(session)

	d, err := dispatcher.New(dispatcher.Options{
		Store:     history.NewStore(cfg.MaxHistoryMessages, cfg.ReplyContextDepth),
		Allowlist: allow,
		Client:    llmClient,
		Platform:  platform,
		Policy: chunker.Policy{
			Limit:         cfg.MaxResponseLength,
			FileThreshold: cfg.FileUploadThreshold,
			FileName:      chunker.DefaultFileName,
		},
		Recorder:            rec,
		Logger:              logger.Named("dispatcher"),
		Prefix:              cfg.CommandPrefix,
		ReactionProbability: cfg.ReactionProbability(),
		Timeout:             cfg.CompletionTimeout,
	})
	if err != nil {
		return err
	}

	bot := discord.New(session, d, platform, allow, discord.Options{
		AdminUserID: cfg.AdminUserID,
		Recorder:    rec,
		Logger:      logger.Named("discord"),
	})

	sched := scheduler.New(nil, logger.Named("scheduler"))
	if cfg.DailyGreeting {
		if err := sched.AddJob(cfg.GreetingSchedule, "daily-greeting", bot.SendGreetings); err != nil {
			return err
		}
	}
	if cfg.ReportSchedule != "" {
		if err := sched.AddJob(cfg.ReportSchedule, "daily-report", bot.SendDailyReport); err != nil {
			return err
		}
	}

	logger.Info("starting bot",
		zap.String("provider", string(cfg.LLMProvider)),
		zap.String("model", cfg.OpenAIModel),
		zap.String("prefix", cfg.CommandPrefix),
		zap.Int("history", cfg.MaxHistoryMessages),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("bot stopped")
	return nil
}

// readSystemPrompt prefers SYSTEM_PROMPT, then the file at SYSTEM_PROMPT_PATH,
// then the built-in prompt.
func readSystemPrompt(cfg *config.Config, logger *zap.Logger) string {
	if p := strings.TrimSpace(cfg.SystemPrompt); p != "" {
		return p
	}
	if cfg.SystemPromptPath != "" {
		data, err := os.ReadFile(cfg.SystemPromptPath)
		if err != nil {
			logger.Warn("system prompt file not found or unreadable", zap.String("path", cfg.SystemPromptPath), zap.Error(err))
		} else if p := strings.TrimSpace(string(data)); p != "" {
			return p
		}
	}
	return config.DefaultSystemPrompt()
}
