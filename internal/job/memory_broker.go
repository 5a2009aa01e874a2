package job

import (
	"context"
	"sync"

	"github.com/record-sync/internal/models"
)

// MemoryBroker is an in-process FIFO broker used when the API and the
// workers share a process.
type MemoryBroker struct {
	queue  chan *models.PersistenceJob
	closed chan struct{}
	once   sync.Once
}

// NewMemoryBroker creates a broker holding up to capacity undelivered jobs
func NewMemoryBroker(capacity int) *MemoryBroker {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBroker{
		queue:  make(chan *models.PersistenceJob, capacity),
		closed: make(chan struct{}),
	}
}

// Publish appends a job, blocking while the broker is full
func (b *MemoryBroker) Publish(ctx context.Context, job *models.PersistenceJob) error {
	select {
	case <-b.closed:
		return ErrBrokerClosed
	default:
	}

	select {
	case b.queue <- job:
		return nil
	case <-b.closed:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel of deliveries in publish order. Once ctx is
// cancelled the jobs still queued are handed out before the channel closes,
// so the caller must keep reading until then.
func (b *MemoryBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.drain(out)
				return
			case <-b.closed:
				return
			case job := <-b.queue:
				out <- memoryDelivery(job)
			}
		}
	}()

	return out, nil
}

func (b *MemoryBroker) drain(out chan<- Delivery) {
	for {
		select {
		case job := <-b.queue:
			out <- memoryDelivery(job)
		default:
			return
		}
	}
}

func memoryDelivery(job *models.PersistenceJob) Delivery {
	return Delivery{Job: job, Ack: func() error { return nil }}
}

// Len returns the number of jobs waiting for a consumer
func (b *MemoryBroker) Len() int {
	return len(b.queue)
}

// Close stops the broker. Jobs still queued are dropped.
func (b *MemoryBroker) Close() error {
	b.once.Do(func() {
		close(b.closed)
	})
	return nil
}
