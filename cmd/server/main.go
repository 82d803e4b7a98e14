package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/assistant"
	"github.com/suPer8Hu/haru-bank/internal/chat"
	"github.com/suPer8Hu/haru-bank/internal/config"
	"github.com/suPer8Hu/haru-bank/internal/db"
	"github.com/suPer8Hu/haru-bank/internal/httpapi"
	"github.com/suPer8Hu/haru-bank/internal/httpapi/handlers"
	"github.com/suPer8Hu/haru-bank/internal/logger"
	"github.com/suPer8Hu/haru-bank/internal/store/rabbitmq"
	"github.com/suPer8Hu/haru-bank/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if err := logger.Init(cfg.LogDevelopment, logger.LogLevel(cfg.LogLevel)); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()
	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := chat.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	archive := chat.NewService(chat.NewRepo(gdb))

	ctx := context.Background()

	// idempotency is best effort: without redis the ledger endpoints still work
	var idem handlers.Idempotency
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable, idempotency keys ignored", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rds.Close()
	} else {
		idem = rds
		defer rds.Close()
	}
	cancel()

	// ledger events go through rabbitmq when configured, otherwise straight
	// to the archive
	var events assistant.EventPublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, archiving ledger events directly", zap.Error(err))
		} else {
			events = pub
			defer pub.Close()
		}
	}

	reg := ai.NewRegistry()
	reg.Register("gemini", func(ctx context.Context) (ai.Provider, error) {
		return ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			TextModel: cfg.GeminiTextModel,
			LiveModel: cfg.GeminiLiveModel,
			Voice:     cfg.GeminiVoice,
		})
	})
	reg.Register(assistant.MockProvider, func(context.Context) (ai.Provider, error) {
		return ai.NewMockProvider(), nil
	})

	sessions := assistant.NewSessions(assistant.Options{
		Providers:        reg,
		Provider:         cfg.AIProvider,
		Model:            cfg.GeminiTextModel,
		HistoryThreshold: cfg.HistoryThreshold,
		SummarizeCount:   cfg.SummarizeCount,
		ChatTimeout:      cfg.ChatTimeout,
		Archive:          archive,
		Events:           events,
		Logger:           log,
	})

	h := handlers.NewHandler(sessions, archive, idem, cfg, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	sessions.CloseAll(shutdownCtx)
}
