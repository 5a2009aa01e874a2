package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
	"github.com/record-sync/internal/retry"
)

// ErrQueueFull is returned when the dispatch buffer has no room for a job
var ErrQueueFull = errors.New("dispatch buffer full")

// ErrDispatcherStopped is returned when enqueueing after Stop
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	// BufferSize bounds jobs waiting to be published. Default: 1024.
	BufferSize int

	// PublishTimeout bounds one publish attempt. Default: 5s.
	PublishTimeout time.Duration

	// Retry controls republishing after a failed publish. Default: 3 attempts
	// starting at 200ms.
	Retry *retry.RetryConfig
}

// Dispatcher accepts jobs from request handlers without blocking and
// publishes them to the broker in the background.
type Dispatcher struct {
	publisher      Publisher
	buffer         chan *models.PersistenceJob
	publishTimeout time.Duration
	retryConfig    *retry.RetryConfig
	logger         *logging.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewDispatcher creates a dispatcher publishing to publisher
func NewDispatcher(publisher Publisher, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = &retry.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			ShouldRetry: func(err error) bool {
				return !errors.Is(err, ErrBrokerClosed)
			},
		}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Dispatcher{
		publisher:      publisher,
		buffer:         make(chan *models.PersistenceJob, cfg.BufferSize),
		publishTimeout: cfg.PublishTimeout,
		retryConfig:    cfg.Retry,
		logger:         logger.WithField("component", "dispatcher"),
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start begins publishing buffered jobs
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	go d.run()
}

// Enqueue hands a job off for publishing. It never blocks: a full buffer
// drops the job and returns ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, job *models.PersistenceJob) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.buffer <- job:
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"job_id":  job.ID,
			"type":    job.Type,
			"records": len(job.Records),
		}).Debug("Persistence job enqueued")
		return nil
	default:
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"job_id":  job.ID,
			"type":    job.Type,
			"records": len(job.Records),
		}).Error("Dispatch buffer full, dropping persistence job")
		return ErrQueueFull
	}
}

// Pending returns the number of jobs waiting to be published
func (d *Dispatcher) Pending() int {
	return len(d.buffer)
}

// Stop stops accepting jobs, publishes what is buffered and returns
// once the buffer is drained or ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	close(d.stopCh)
	d.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case job := <-d.buffer:
			d.publish(context.Background(), job)
		case <-d.stopCh:
			d.drain()
			return
		}
	}
}

// drain publishes whatever is still buffered after Stop
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.buffer:
			d.publish(context.Background(), job)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, job *models.PersistenceJob) {
	logger := d.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"type":   job.Type,
	})
	ctx = logging.WithLogger(ctx, logger)

	result := retry.WithExponentialBackoff(ctx, d.retryConfig, func(ctx context.Context, attempt int) error {
		publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
		defer cancel()
		return d.publisher.Publish(publishCtx, job)
	})

	if !result.Success {
		logger.WithError(result.Err()).
			Error("Failed to publish persistence job, dropping it")
		return
	}

	logger.Debug("Persistence job published")
}
