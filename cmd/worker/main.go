// Package main provides the persistence worker entry point. It consumes
// persistence jobs from RabbitMQ and writes their records to the record store.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/record-sync/internal/broker"
	"github.com/record-sync/internal/config"
	"github.com/record-sync/internal/job"
	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	if cfg.Broker.Backend != config.BrokerBackendAMQP {
		logger.Fatalf("Worker needs BROKER_BACKEND=%s, got %q (the memory backend runs inside the server)",
			config.BrokerBackendAMQP, cfg.Broker.Backend)
	}

	store, err := storage.OpenRecordStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open record store")
	}
	defer store.Close()

	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureSchema(schemaCtx); err != nil {
		cancel()
		logger.WithError(err).Fatal("Failed to ensure schema")
	}
	cancel()

	rabbit, err := broker.NewRabbitMQ(broker.Config{
		URL:        cfg.Broker.URL,
		Exchange:   cfg.Broker.Exchange,
		QueueName:  cfg.Broker.Queue,
		RoutingKey: cfg.Broker.RoutingKey,
		Prefetch:   cfg.Broker.Prefetch,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer rabbit.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"queue":       cfg.Broker.Queue,
		"concurrency": cfg.Worker.Concurrency,
		"store":       cfg.Store.Driver,
	}).Info("Persistence worker starting")

	pool := job.NewWorkerPool(rabbit, job.NewPersister(store), cfg.Worker.Concurrency, logger)
	if err := pool.Run(ctx); err != nil {
		logger.WithError(err).Error("Worker pool failed")
		return
	}

	logger.Info("Persistence worker stopped")
}
