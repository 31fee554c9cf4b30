// Package main provides a polling subscriber: it pulls one subscription of a
// running broker server, prints every message and acknowledges it.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/coregx/broker"
	"github.com/coregx/broker/client"
	"github.com/coregx/broker/internal/logging"
	"github.com/coregx/broker/model"
)

// Config holds the subscriber settings, read from the environment.
type Config struct {
	ServerURL      string        `env:"BROKER_URL" env-default:"http://localhost:8080"`
	SubscriptionID int64         `env:"SUBSCRIPTION_ID" env-required:"true"`
	MaxBatch       int           `env:"PULL_BATCH" env-default:"10"`
	Lease          time.Duration `env:"PULL_LEASE" env-default:"30s"`
	Interval       time.Duration `env:"POLL_INTERVAL" env-default:"2s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s"`
	LogLevel       string        `env:"LOG_LEVEL" env-default:"info"`
	LogJSON        bool          `env:"LOG_FORMAT_JSON" env-default:"false"`
}

func main() {
	var cfg Config
	if err := readConfig(&cfg); err != nil {
		help, _ := cleanenv.GetDescription(&cfg, nil)
		fmt.Fprintf(os.Stderr, "Failed to read configuration: %v\n\n%s\n", err, help)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, FormatJSON: cfg.LogJSON})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Subscriber stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Subscriber stopped")
}

func readConfig(cfg *Config) error {
	return cleanenv.ReadEnv(cfg)
}

func run(ctx context.Context, cfg Config, log *zap.Logger) error {
	c, err := client.New(cfg.ServerURL, client.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}))
	if err != nil {
		return err
	}

	consumer, err := broker.NewConsumer(
		broker.WithConsumerSource(c),
		broker.WithConsumerSubscription(cfg.SubscriptionID),
		broker.WithConsumerLogger(logging.NewZapLogger(log)),
		broker.WithConsumerBatch(cfg.MaxBatch, cfg.Lease),
		broker.WithConsumerInterval(cfg.Interval),
		broker.WithConsumerHandler(printMessage(os.Stdout)),
	)
	if err != nil {
		return err
	}

	log.Info("Listening",
		zap.String("server", cfg.ServerURL),
		zap.Int64("subscription", cfg.SubscriptionID),
		zap.Duration("interval", cfg.Interval),
	)
	return consumer.Run(ctx)
}

func printMessage(out io.Writer) broker.Handler {
	return func(_ context.Context, m model.Message) error {
		_, err := fmt.Fprintf(out, "%d - %s - %s (delivery %d)\n", m.ID, m.Payload, m.Status, m.DeliveryCount)
		return err
	}
}
