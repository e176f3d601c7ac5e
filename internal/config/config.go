package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// ----------------------------
	// Queue
	// ----------------------------
	AMQPURL       string `envconfig:"AMQP_URL" default:""`
	DeliveryQueue string `envconfig:"DELIVERY_QUEUE" default:"delivery_jobs"`

	// ----------------------------
	// Workers
	// ----------------------------
	WorkerCount  int           `envconfig:"WORKER_COUNT" default:"5"`
	RateLimit    int           `envconfig:"RATE_LIMIT" default:"10"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollBatch    int           `envconfig:"POLL_BATCH" default:"50"`

	// A row stuck in sending longer than this is treated as abandoned by a
	// crashed worker and swept by the reaper.
	StaleSendingAfter time.Duration `envconfig:"STALE_SENDING_AFTER" default:"5m"`
	ReaperInterval    time.Duration `envconfig:"REAPER_INTERVAL" default:"1m"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
