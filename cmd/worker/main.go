// Worker consumes forwarded events from Kafka and writes them to the Postgres journal.
// Set KAFKA_BROKERS, KAFKA_TOPIC, KAFKA_GROUP_ID and DATABASE_URL.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"scout-sdk/internal/config"
	"scout-sdk/internal/db"
	"scout-sdk/internal/journal"
	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
	"scout-sdk/internal/sink/kafka"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", nil).Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("worker: stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker: stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		return errors.New("worker: KAFKA_BROKERS is required")
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	repo := journal.NewPostgresRepository(database)

	consumer, err := kafka.NewConsumer(brokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	logger.Info("worker: consuming", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	return consumer.Run(ctx, func(ctx context.Context, r sink.Record) error {
		return repo.Create(ctx, journal.EntryFromRecord(r))
	})
}
