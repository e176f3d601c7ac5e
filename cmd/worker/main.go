// cmd/worker/main.go
package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sequentia/remindflow-backend/internal/config"
	"github.com/sequentia/remindflow-backend/internal/db"
	"github.com/sequentia/remindflow-backend/internal/metrics"
	"github.com/sequentia/remindflow-backend/internal/notify"
	"github.com/sequentia/remindflow-backend/internal/queue"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/sender"
	"github.com/sequentia/remindflow-backend/internal/service"
)

// gatewaySender stands in for the real channel provider client. Swap it for
// the WhatsApp/SMS gateway integration when one is wired up.
type gatewaySender struct {
	log *zap.Logger
}

func (g *gatewaySender) Send(ctx context.Context, req sender.Request) error {
	// Mock send: 90% success
	if rand.Intn(100) < 90 {
		g.log.Info("message dispatched",
			zap.Int64("message_id", req.MessageID),
			zap.Int64("target_channel_id", req.TargetChannelID),
		)
		return nil
	}
	return sender.Transient("gateway timeout")
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer conn.Close()

	metrics.Init()

	var q queue.Queue
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.DeliveryQueue)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		q = amqpQueue
		logger.Info("using RabbitMQ delivery queue", zap.String("queue", cfg.DeliveryQueue))
	} else {
		q = queue.NewInMemoryQueue(cfg.PollBatch * 2)
		logger.Info("AMQP_URL not set, using in-process delivery queue")
	}
	defer q.Close()

	messageRepo := &repository.ScheduledMessageRepository{DB: conn}
	deadLetterRepo := &repository.DeadLetterRepository{DB: conn}

	deliveryService := &service.DeliveryService{
		Messages:    messageRepo,
		DeadLetters: deadLetterRepo,
		Sender:      &gatewaySender{log: logger},
		Notifier:    notify.New(),
		Log:         logger,
		MaxRetries:  cfg.MaxRetries,
	}

	pool := &service.WorkerPool{
		Delivery:       deliveryService,
		Queue:          q,
		Log:            logger,
		Workers:        cfg.WorkerCount,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		PollInterval:   cfg.PollInterval,
		PollBatch:      cfg.PollBatch,
		StaleAfter:     cfg.StaleSendingAfter,
		ReaperInterval: cfg.ReaperInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := http.ListenAndServe(":"+cfg.MetricsPort, metricsMux); err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("worker running, waiting for due messages")
	pool.Run(ctx)
	logger.Info("worker shutdown complete")
}
