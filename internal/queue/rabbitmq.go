// Package queue moves translation jobs and their results over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/PranayPant/speech-to-text/internal/worker"
)

// Consumer reads jobs from a durable queue.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
}

// NewConsumer connects, declares queueName and limits unacknowledged
// deliveries to prefetch.
func NewConsumer(amqpURL, queueName string, prefetch int) (*Consumer, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queueName, prefetch: prefetch}, nil
}

// Tasks turns deliveries into worker tasks until ctx is cancelled or the
// channel closes. Each task acknowledges its delivery after publishing the
// result through publish. Malformed messages are rejected without requeue.
func (c *Consumer) Tasks(ctx context.Context, publish func(worker.JobResult) error) (<-chan worker.Task, error) {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	tasks := make(chan worker.Task)
	go func() {
		defer close(tasks)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					slog.Warn("delivery channel closed", "queue", c.queue)
					return
				}
				job, err := DecodeJob(d.Body)
				if err != nil {
					slog.Warn("rejecting malformed job", "queue", c.queue, "err", err)
					_ = d.Reject(false)
					continue
				}
				task := worker.Task{Job: job, Done: acknowledger(d, publish)}
				select {
				case tasks <- task:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return tasks, nil
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func acknowledger(d acker, publish func(worker.JobResult) error) func(worker.JobResult) error {
	return func(res worker.JobResult) error {
		if publish != nil {
			if err := publish(res); err != nil {
				_ = d.Nack(false, true)
				return fmt.Errorf("publish result: %w", err)
			}
		}
		return d.Ack(false)
	}
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	return closeAll(c.ch, c.conn)
}

// Producer publishes JSON messages to durable queues.
type Producer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewProducer connects to amqpURL.
func NewProducer(amqpURL string) (*Producer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Producer{conn: conn, ch: ch}, nil
}

// Publish declares queueName and sends v encoded as JSON.
func (p *Producer) Publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := p.ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	err = p.ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *Producer) Close() error {
	return closeAll(p.ch, p.conn)
}

// DecodeJob parses a job message.
func DecodeJob(body []byte) (worker.Job, error) {
	var job worker.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("decode job: %w", err)
	}
	if job.TranscriptID == "" {
		return job, errors.New("decode job: transcript_id required")
	}
	return job, nil
}

func closeAll(ch *amqp.Channel, conn *amqp.Connection) error {
	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
