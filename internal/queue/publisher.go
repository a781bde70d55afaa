package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends an event to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, event any) error
}

// AMQPPublisher publishes JSON events to RabbitMQ.  Each call dials its own
// connection; publishing is rare compared to quoting.  Errors are logged
// and returned so the caller can choose to ignore them.
type AMQPPublisher struct {
	URL    string
	Logger *slog.Logger
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{URL: url, Logger: logger.With("component", "publisher")}
}

// Publish declares queue (durable) and sends event as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, event any) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Logger.Warn("dial failed", "queue", queue, "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.Warn("channel open failed", "queue", queue, "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.Logger.Warn("queue declare failed", "queue", queue, "error", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         queue,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.Logger.Warn("publish failed", "queue", queue, "error", err)
		return err
	}
	return nil
}

// Discard drops every event.  It stands in when no broker is configured.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, string, any) error { return nil }
