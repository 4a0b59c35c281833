package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"labslot/internal/notifier"
	"labslot/pkg/config"
	"labslot/pkg/kafka"
	kafka_config "labslot/pkg/kafka/config"
	kafka_middleware "labslot/pkg/kafka/middleware"

	"golang.org/x/sync/errgroup"
)

const ServiceName = "notifier"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	h := notifier.NewHandler(notifier.NewMongoStore(cfg), cfg.Log)
	metrics := kafka_middleware.NewMetrics()

	topics := map[string]kafka.MessageHandler{
		cfg.NotificationTopic: h.HandleNotification,
		cfg.AuditTopic:        h.HandleAudit,
	}

	var consumers []*kafka.Consumer
	for topic, handle := range topics {
		consumer, err := kafka.NewConsumer(kafkaCfg, topic, cfg.NotifierConsumerGroup, cfg.DispatchDLQTopic, handle, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create consumer", "topic", topic, "error", err)
		}
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(metrics.ConsumerMiddleware())
		consumers = append(consumers, consumer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting notifier", "topics", len(consumers), "group", cfg.NotifierConsumerGroup)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		c := c
		g.Go(func() error {
			if err := c.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cfg.Log.Error("Consumer stopped", "error", err)
	} else {
		cfg.Log.Info("Shutdown signal received, stopping consumers")
	}

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			cfg.Log.Error("Failed to close consumer", "error", err)
		}
	}
	metrics.Log(cfg.Log)
	cfg.Log.Info("Notifier stopped")
}
