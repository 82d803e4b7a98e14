package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/haru-bank/internal/chat"
	"github.com/suPer8Hu/haru-bank/internal/config"
	"github.com/suPer8Hu/haru-bank/internal/db"
	"github.com/suPer8Hu/haru-bank/internal/logger"
	"github.com/suPer8Hu/haru-bank/internal/store/rabbitmq"
	"go.uber.org/zap"
)

const (
	maxRetries = 5
	retryDelay = 2 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if err := logger.Init(cfg.LogDevelopment, logger.LogLevel(cfg.LogLevel)); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get().With(zap.String("component", "ledger-worker"))

	if cfg.RabbitURL == "" {
		log.Fatal("RABBIT_URL is required for the worker")
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := chat.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	svc := chat.NewService(chat.NewRepo(gdb))

	retries, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher", zap.Error(err))
	}
	defer retries.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	// strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range jobs {
				settle(ctx, wlog, d, handleDelivery(ctx, svc, d.Body), retries)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

type retrier interface {
	Retry(ctx context.Context, d amqp.Delivery, delay time.Duration) error
}

// settle acks, retries or dead-letters d according to the handling result.
func settle(ctx context.Context, log *zap.Logger, d amqp.Delivery, err error, r retrier) {
	if err == nil {
		if aerr := d.Ack(false); aerr != nil {
			log.Warn("ack failed", zap.String("message_id", d.MessageId), zap.Error(aerr))
		}
		return
	}

	attempt := rabbitmq.RetryCount(d.Headers)
	fields := []zap.Field{zap.String("message_id", d.MessageId), zap.Int("attempt", attempt), zap.Error(err)}

	if errors.Is(err, rabbitmq.ErrBadMessage) || errors.Is(err, chat.ErrInvalidEvent) || attempt >= maxRetries {
		log.Error("ledger event dead-lettered", fields...)
		_ = d.Nack(false, false)
		return
	}

	if rerr := r.Retry(ctx, d, retryDelay*time.Duration(attempt+1)); rerr != nil {
		log.Error("ledger event retry publish failed, requeueing", append(fields, zap.NamedError("retry_err", rerr))...)
		_ = d.Nack(false, true)
		return
	}
	log.Warn("ledger event scheduled for retry", fields...)
	_ = d.Ack(false)
}

type ledgerArchive interface {
	RecordLedgerEvent(ctx context.Context, ev *chat.LedgerEvent) (bool, error)
}

// handleDelivery archives one ledger message. Redelivered events are
// absorbed by the archive's unique event id.
func handleDelivery(ctx context.Context, svc ledgerArchive, body []byte) error {
	m, err := rabbitmq.DecodeLedgerMessage(body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = svc.RecordLedgerEvent(ctx, chat.NewLedgerEvent(m))
	return err
}
