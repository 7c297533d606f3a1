package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/comet/internal/access"
	"github.com/suPer8Hu/comet/internal/ai"
	"github.com/suPer8Hu/comet/internal/bot"
	"github.com/suPer8Hu/comet/internal/config"
	"github.com/suPer8Hu/comet/internal/db"
	"github.com/suPer8Hu/comet/internal/httpapi"
	"github.com/suPer8Hu/comet/internal/httpapi/handlers"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
	"github.com/suPer8Hu/comet/internal/store/rabbitmq"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and relay conversations (default)",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, logger, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}
	accessRepo := access.NewRepo(gdb, cfg.Timezone)

	var publisher moderation.Publisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return fmt.Errorf("rabbit: %w", err)
		}
		defer pub.Close()
		publisher = pub
		logger.Info("publishing moderation events", "queue", cfg.RabbitQueue)
	}
	modLog := moderation.NewLog(moderation.NewRepo(gdb), publisher, logger)
	gate := moderation.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ModerationModel)

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := sessions.(io.Closer); ok {
		defer c.Close()
	}

	registry := ai.NewRegistry()
	gpt := ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.Prompts.System, cfg.BotName)
	gpt.Output = &ai.OutputModeration{Gate: gate, Recorder: modLog, Policy: ai.Policy(cfg.GPT.OutputModeration), Logger: logger}
	registry.Register(session.GPT, gpt)
	claude := ai.NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.BotName)
	claude.Output = &ai.OutputModeration{Gate: gate, Recorder: modLog, Policy: ai.Policy(cfg.Claude.OutputModeration), Logger: logger}
	registry.Register(session.Claude, claude)

	guard := bot.NewGuard(cfg.AuthorizedServerIDs, cfg.AdminUserIDs, accessRepo)
	relay := bot.NewService(cfg, guard, gate, modLog, sessions, registry, nil, logger)
	admin := bot.NewAccessAdmin(guard, accessRepo, logger)

	discord, err := bot.NewDiscord(cfg, relay, admin, logger)
	if err != nil {
		return err
	}
	if err := discord.Start(ctx); err != nil {
		return err
	}
	defer discord.Stop()

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		h := handlers.NewHandler(modLog, accessRepo, sessions, cfg.Timezone, logger)
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(h, cfg.JWTSecret, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ops api listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops api stopped", "err", err)
				stop()
			}
		}()
	}

	logger.Info("comet started", "bot_name", cfg.BotName, "session_backend", cfg.SessionBackend)
	<-ctx.Done()
	logger.Info("comet shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

func openSessions(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		store, err := session.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		slog.Info("sessions stored in redis", "addr", cfg.RedisAddr)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
}
