package queue

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
)

// Job is one delivery assignment. Ack must be called after the worker has
// recorded an outcome; claims are CAS-guarded so redelivery is harmless.
type Job struct {
	MessageID int64  `json:"message_id"`
	Ack       func() `json:"-"`
}

// Queue moves due message IDs from the dispatcher to the delivery workers.
type Queue interface {
	Publish(ctx context.Context, messageID int64) error
	Consume(ctx context.Context) (<-chan Job, error)
	Close() error
}

// ====================== In-memory ======================

// InMemoryQueue backs tests and single-process runs.
type InMemoryQueue struct {
	jobs chan Job
}

func NewInMemoryQueue(buffer int) *InMemoryQueue {
	if buffer <= 0 {
		buffer = 100
	}
	return &InMemoryQueue{jobs: make(chan Job, buffer)}
}

func (q *InMemoryQueue) Publish(ctx context.Context, messageID int64) error {
	select {
	case q.jobs <- Job{MessageID: messageID, Ack: func() {}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Consume(ctx context.Context) (<-chan Job, error) {
	return q.jobs, nil
}

func (q *InMemoryQueue) Close() error {
	return nil
}

// ====================== RabbitMQ ======================

type AMQPQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPQueue(url, queueName string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, queue: queueName}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, messageID int64) error {
	body, err := json.Marshal(Job{MessageID: messageID})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",      // exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Job, error) {
	deliveries, err := q.ch.Consume(
		q.queue,
		"",    // consumer tag
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var job Job
				if err := json.Unmarshal(d.Body, &job); err != nil {
					// malformed payload, drop it
					_ = d.Ack(false)
					continue
				}
				delivery := d
				job.Ack = func() { _ = delivery.Ack(false) }
				select {
				case out <- job:
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*InMemoryQueue)(nil)
var _ Queue = (*AMQPQueue)(nil)
