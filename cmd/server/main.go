// cmd/server/main.go
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sequentia/remindflow-backend/internal/config"
	"github.com/sequentia/remindflow-backend/internal/controller"
	"github.com/sequentia/remindflow-backend/internal/db"
	"github.com/sequentia/remindflow-backend/internal/metrics"
	"github.com/sequentia/remindflow-backend/internal/notify"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load .env
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

	messageRepo := &repository.ScheduledMessageRepository{DB: conn}
	deadLetterRepo := &repository.DeadLetterRepository{DB: conn}
	notifier := notify.New()

	schedulerService := &service.SchedulerService{
		Messages: messageRepo,
		Notifier: notifier,
		Log:      logger,
	}
	deliveryService := &service.DeliveryService{
		Messages:    messageRepo,
		DeadLetters: deadLetterRepo,
		Notifier:    notifier,
		Log:         logger,
		MaxRetries:  cfg.MaxRetries,
	}
	dlqService := &service.DLQService{
		DeadLetters: deadLetterRepo,
		Log:         logger,
	}

	messageController := &controller.MessageController{
		Scheduler: schedulerService,
		Delivery:  deliveryService,
		Messages:  messageRepo,
		Notifier:  notifier,
	}
	dlqController := &controller.DLQController{DLQ: dlqService}

	r := chi.NewRouter()

	// Sequence + message routes
	r.Post("/events/{id}/schedule", messageController.ScheduleSequence)
	r.Get("/events/{id}/messages", messageController.ListEventMessages)
	r.Get("/events/{id}/stream", messageController.StreamEventChanges)
	r.Post("/messages/{id}/cancel", messageController.CancelMessage)
	r.Post("/messages/{id}/requeue", messageController.RequeueMessage)

	// Dead letter review routes
	r.Get("/dead-letters", dlqController.ListEntries)
	r.Get("/dead-letters/{id}", dlqController.GetEntry)
	r.Post("/dead-letters/{id}/retry", dlqController.RetryEntry)
	r.Post("/dead-letters/{id}/discard", dlqController.DiscardEntry)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := http.ListenAndServe(":"+cfg.MetricsPort, metricsMux); err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("server running", zap.String("port", cfg.APIPort))
	if err := http.ListenAndServe(":"+cfg.APIPort, r); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
