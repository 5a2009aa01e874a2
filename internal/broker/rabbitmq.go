// Package broker carries persistence jobs between processes over RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/record-sync/internal/job"
	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
)

// Config holds RabbitMQ settings
type Config struct {
	URL        string
	Exchange   string
	QueueName  string
	RoutingKey string
	Prefetch   int
}

// RabbitMQ publishes and consumes persistence jobs on a durable queue
type RabbitMQ struct {
	conn       *amqp.Connection
	publishMu  sync.Mutex
	channel    *amqp.Channel
	exchange   string
	queue      string
	routingKey string
	prefetch   int
	logger     *logging.Logger
}

var _ job.Broker = (*RabbitMQ)(nil)

// NewRabbitMQ connects and declares the exchange, queue and binding
func NewRabbitMQ(cfg Config, logger *logging.Logger) (*RabbitMQ, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}

	logger.WithFields(map[string]interface{}{
		"exchange":    cfg.Exchange,
		"queue":       cfg.QueueName,
		"routing_key": cfg.RoutingKey,
	}).Info("Connected to RabbitMQ")

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		queue:      cfg.QueueName,
		routingKey: cfg.RoutingKey,
		prefetch:   prefetch,
		logger:     logger.WithField("component", "rabbitmq"),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// Publish sends a job as a persistent JSON message
func (r *RabbitMQ) Publish(ctx context.Context, j *models.PersistenceJob) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	if r.channel.IsClosed() {
		return job.ErrBrokerClosed
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    j.ID,
			Type:         string(j.Type),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}

	return nil
}

// Consume opens a dedicated channel and streams jobs with manual ack.
// Messages that are not valid jobs are rejected without requeue.
func (r *RabbitMQ) Consume(ctx context.Context) (<-chan job.Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(
		ctx,
		r.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	out := make(chan job.Delivery)

	// Deliveries handed to workers are acked on ch, so it stays open until they are all done
	var outstanding sync.WaitGroup

	go func() {
		defer ch.Close()
		defer outstanding.Wait()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				outstanding.Add(1)
				d, err := toDelivery(msg, outstanding.Done)
				if err != nil {
					outstanding.Done()
					r.logger.WithField("message_id", msg.MessageId).WithError(err).
						Error("Rejecting malformed persistence job")
					_ = msg.Nack(false, false)
					continue
				}

				select {
				case out <- d:
				case <-ctx.Done():
					outstanding.Done()
					// Unclaimed message goes back to the queue
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

// toDelivery decodes msg. done runs once, after the message is acked.
func toDelivery(msg amqp.Delivery, done func()) (job.Delivery, error) {
	var j models.PersistenceJob
	if err := json.Unmarshal(msg.Body, &j); err != nil {
		return job.Delivery{}, fmt.Errorf("unmarshal job: %w", err)
	}
	if !j.Type.IsValid() {
		return job.Delivery{}, errors.New("unknown record type " + string(j.Type))
	}

	var once sync.Once
	return job.Delivery{
		Job: &j,
		Ack: func() error {
			defer once.Do(done)
			return msg.Ack(false)
		},
	}, nil
}

// Ping reports whether the connection is still open
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
