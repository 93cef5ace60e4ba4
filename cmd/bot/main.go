package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gptgate/internal/common/config"
	"gptgate/internal/common/logger"
	"gptgate/internal/features/account/repository"
	redisrepo "gptgate/internal/features/account/repository/redis"
	sqliterepo "gptgate/internal/features/account/repository/sqlite"
	account "gptgate/internal/features/account/service"
	"gptgate/internal/features/chat"
	"gptgate/internal/httpapi"
	"gptgate/internal/platform/openai"
	redisplatform "gptgate/internal/platform/redis"
	"gptgate/internal/platform/sqlite"
	"gptgate/internal/platform/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Init("gptgate", cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open account store")
	}
	defer store.Close()

	accounts := account.New(store)

	tokenizer, err := chat.NewModelTokenizer(cfg.OpenAI.ChatModel)
	if err != nil {
		logger.Fatal().Err(err).Str("model", cfg.OpenAI.ChatModel).Msg("failed to load tokenizer")
	}

	bot := telegram.NewClient(cfg.Telegram.BotToken)
	ai := openai.NewClient(cfg.OpenAI.SecretKey, openai.WithBaseURL(cfg.OpenAI.BaseURL))

	sessions := chat.NewStore()
	orch := chat.NewOrchestrator(
		sessions,
		accounts,
		bot,
		aiBackend{client: ai},
		chat.NewBudgeter(tokenizer),
		cfg.OpenAI.ChatModel,
		cfg.OpenAI.ImageSize,
	)

	go func() {
		router := httpapi.New(store, sessions, time.Now())
		logger.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := router.Run(cfg.Server.Addr); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	poller := telegram.NewPoller(bot, cfg.Telegram.PollTimeout)
	logger.Info().Str("model", cfg.OpenAI.ChatModel).Msg("bot polling for updates")

	err = poller.Run(ctx, func(ctx context.Context, upd telegram.Update) {
		if upd.Message == nil || upd.Message.From == nil {
			return
		}
		orch.HandleMessage(ctx, chat.Inbound{
			UserID: upd.Message.From.ID,
			ChatID: upd.Message.Chat.ID,
			Text:   upd.Message.Text,
		})
	})
	if err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("poller stopped")
	}
	logger.Info().Msg("shutting down")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliterepo.New(db)
	case "redis":
		client, err := redisplatform.Open(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return redisrepo.New(client.Client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// aiBackend adapts the OpenAI client to the orchestrator's backend interface.
type aiBackend struct {
	client *openai.Client
}

func (a aiBackend) Complete(ctx context.Context, model string, history []chat.Turn) (chat.Turn, error) {
	messages := make([]openai.ChatMessage, len(history))
	for i, t := range history {
		messages[i] = openai.ChatMessage{Role: t.Role, Content: t.Content}
	}

	reply, err := a.client.ChatCompletion(ctx, model, messages)
	if err != nil {
		return chat.Turn{}, err
	}
	return chat.Turn{Role: reply.Role, Content: reply.Content}, nil
}

func (a aiBackend) GenerateImage(ctx context.Context, prompt string, n int, size string) ([]string, error) {
	return a.client.GenerateImage(ctx, prompt, n, size)
}
