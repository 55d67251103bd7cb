package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trendstore/commerce-core/internal/config"
	"github.com/trendstore/commerce-core/internal/messaging"
	"github.com/trendstore/commerce-core/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(false)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	if cfg.EmailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	createdConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderCreated, "notification-worker")
	defer func() { _ = createdConsumer.Close() }()

	statusConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderStatusChanged, "notification-worker")
	defer func() { _ = statusConsumer.Close() }()

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	notificationHandler := worker.NewNotificationHandler(cfg.EmailServiceURL, httpClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", cfg.KafkaBrokers)

	var wg sync.WaitGroup
	consume := func(c *messaging.Consumer, topic string, handle func(context.Context, []byte) error) {
		defer wg.Done()
		if err := c.Consume(ctx, handle); err != nil {
			if ctx.Err() == context.Canceled {
				logger.Info("consumer stopped", "topic", topic)
				return
			}
			logger.Error("consumer error", "topic", topic, "error", err)
			cancel()
		}
	}

	wg.Add(2)
	go consume(createdConsumer, messaging.TopicOrderCreated, notificationHandler.HandleOrderCreated)
	go consume(statusConsumer, messaging.TopicOrderStatusChanged, notificationHandler.HandleStatusChanged)
	wg.Wait()
}
