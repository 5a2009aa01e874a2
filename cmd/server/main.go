// Package main provides the API server entry point for the record sync service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/record-sync/internal/adapter"
	"github.com/record-sync/internal/api"
	"github.com/record-sync/internal/broker"
	"github.com/record-sync/internal/circuitbreaker"
	"github.com/record-sync/internal/config"
	"github.com/record-sync/internal/job"
	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
	"github.com/record-sync/internal/ratelimit"
	"github.com/record-sync/internal/service"
	"github.com/record-sync/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"store":  cfg.Store.Driver,
		"broker": cfg.Broker.Backend,
	}).Info("Record sync API server starting")

	// Record store
	store, err := storage.OpenRecordStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open record store")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureSchema(ctx); err != nil {
		cancel()
		logger.WithError(err).Fatal("Failed to ensure schema")
	}
	cancel()

	// Rate limiter counters
	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	limiter, err := ratelimit.NewLimiter(&ratelimit.Config{
		Redis:        redisCache.Client(),
		Times:        cfg.RateLimit.Times,
		Window:       cfg.RateLimit.Window,
		KeyPrefix:    cfg.RateLimit.KeyPrefix,
		StoreTimeout: cfg.RateLimit.StoreTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rate limiter")
	}

	// Persistence queue
	jobBroker, err := openBroker(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open persistence broker")
	}
	defer jobBroker.Close()

	dispatcher := job.NewDispatcher(jobBroker, job.DispatcherConfig{
		BufferSize:     cfg.Worker.DispatchBuffer,
		PublishTimeout: cfg.Worker.PublishTimeout,
	}, logger)
	dispatcher.Start()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	if cfg.Broker.Backend == config.BrokerBackendMemory {
		pool := job.NewWorkerPool(jobBroker, job.NewPersister(store), cfg.Worker.Concurrency, logger)
		go func() {
			defer close(workersDone)
			if err := pool.Run(workerCtx); err != nil {
				logger.WithError(err).Error("In-process worker pool failed")
			}
		}()
	} else {
		close(workersDone)
	}

	// External sources
	breakers := circuitbreaker.NewManager()
	sources := adapter.NewHTTPSourceClient(adapter.Config{
		BaseURLs: map[models.SourceName]string{
			models.SourceCRM:       cfg.Sources.CRMURL,
			models.SourceMarketing: cfg.Sources.MarketingURL,
		},
		Timeout:  cfg.Sources.Timeout,
		MaxRPS:   cfg.Sources.MaxRPS,
		Breakers: breakers,
		BreakerConfig: &circuitbreaker.Config{
			MaxFailures:      cfg.Sources.BreakerFailures,
			FailureThreshold: cfg.Sources.BreakerThreshold,
			Timeout:          cfg.Sources.BreakerCooldown,
			HalfOpenMaxCalls: cfg.Sources.BreakerProbeCalls,
		},
	})

	healthChecks := map[string]api.HealthChecker{
		"store":   store,
		"limiter": limiter,
	}
	if checker, ok := jobBroker.(api.HealthChecker); ok {
		healthChecks["broker"] = checker
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Ingest:         service.NewIngestService(sources, dispatcher, logger),
		Records:        service.NewRecordService(store),
		Limiter:        limiter,
		IdentityHeader: cfg.RateLimit.IdentityHeader,
		HealthChecks:   healthChecks,
		Breakers:       breakers,
		Logger:         logger,
	})

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel = context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Publish whatever the handlers already accepted before the broker goes away
	if err := dispatcher.Stop(ctx); err != nil {
		logger.WithError(err).Warn("Dispatcher did not drain before shutdown deadline")
	}

	stopWorkers()
	<-workersDone

	logger.Info("Server exited")
}

func openBroker(cfg *config.Config, logger *logging.Logger) (job.Broker, error) {
	if cfg.Broker.Backend == config.BrokerBackendMemory {
		return job.NewMemoryBroker(cfg.Worker.DispatchBuffer), nil
	}

	return broker.NewRabbitMQ(broker.Config{
		URL:        cfg.Broker.URL,
		Exchange:   cfg.Broker.Exchange,
		QueueName:  cfg.Broker.Queue,
		RoutingKey: cfg.Broker.RoutingKey,
		Prefetch:   cfg.Broker.Prefetch,
	}, logger)
}
