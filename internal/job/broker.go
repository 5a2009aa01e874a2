// Package job moves persistence jobs from the API to the workers that write them.
package job

import (
	"context"
	"errors"

	"github.com/record-sync/internal/models"
)

// ErrBrokerClosed is returned when publishing to a closed broker
var ErrBrokerClosed = errors.New("broker closed")

// Delivery is one job handed to a worker. Ack must be called exactly once
// when the worker is done with it, whatever the outcome.
type Delivery struct {
	Job *models.PersistenceJob
	Ack func() error
}

// Publisher hands jobs to the broker
type Publisher interface {
	Publish(ctx context.Context, job *models.PersistenceJob) error
}

// Consumer receives jobs from the broker. The channel is closed when ctx
// is cancelled or the broker shuts down.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Broker carries jobs between publishers and consumers
type Broker interface {
	Publisher
	Consumer
	Close() error
}
