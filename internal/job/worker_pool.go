package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/record-sync/internal/logging"
)

// WorkerPool runs a fixed number of workers over the deliveries of a consumer
type WorkerPool struct {
	consumer    Consumer
	handler     Handler
	concurrency int
	logger      *logging.Logger
}

// NewWorkerPool creates a worker pool
func NewWorkerPool(consumer Consumer, handler Handler, concurrency int, logger *logging.Logger) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 4 // Default to 4 workers
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &WorkerPool{
		consumer:    consumer,
		handler:     handler,
		concurrency: concurrency,
		logger:      logger.WithField("component", "worker_pool"),
	}
}

// Run processes deliveries until ctx is cancelled or the consumer closes,
// then waits for in-flight jobs to finish.
func (p *WorkerPool) Run(ctx context.Context) error {
	deliveries, err := p.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	p.logger.WithField("concurrency", p.concurrency).Info("Worker pool started")

	// In-flight jobs outlive ctx so a shutdown does not cut a job in half
	jobCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for d := range deliveries {
				p.process(jobCtx, worker, d)
			}
		}(i)
	}

	wg.Wait()
	p.logger.Info("Worker pool stopped")
	return nil
}

// process handles one delivery. A failing or panicking job is logged and
// acknowledged; it is never redelivered.
func (p *WorkerPool) process(ctx context.Context, worker int, d Delivery) {
	logger := p.logger.WithFields(map[string]interface{}{
		"worker": worker,
		"job_id": d.Job.ID,
		"type":   d.Job.Type,
	})
	ctx = logging.WithLogger(ctx, logger)
	start := time.Now()

	defer func() {
		if err := d.Ack(); err != nil {
			logger.WithError(err).Warn("Failed to acknowledge job")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Error("Persistence job panicked")
		}
	}()

	result, err := p.handler.Handle(ctx, d.Job)
	if err != nil {
		logger.WithError(err).Error("Persistence job failed")
		return
	}

	logger.WithFields(map[string]interface{}{
		"persisted": result.Persisted,
		"failed":    result.Failed,
		"duration":  time.Since(start).String(),
	}).Info("Persistence job completed")
}
