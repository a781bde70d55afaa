package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditQueues are the queues the audit consumer drains.
var AuditQueues = []string{BookingConfirmedQueue, BookingCancelledQueue, DepartureFinalizedQueue}

// AuditConsumer appends every domain event to a JSON-lines audit file.
type AuditConsumer struct {
	URL    string
	Path   string
	Logger *slog.Logger
}

// auditLine is one line of the audit file.
type auditLine struct {
	Queue      string          `json:"queue"`
	ReceivedAt string          `json:"received_at"`
	Event      json.RawMessage `json:"event"`
}

// Run connects to RabbitMQ, declares the audit queues and consumes them
// until ctx is cancelled.  Lost connections are redialled with exponential
// backoff.  Messages that cannot be decoded are rejected without requeue
// so a poison message cannot stall the loop.
func (c *AuditConsumer) Run(ctx context.Context) error {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "audit-consumer")

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", "error", err)
	}

	type delivery struct {
		queue string
		amqp.Delivery
	}
	merged := make(chan delivery)
	done := make(chan struct{})
	defer close(done)
	for _, q := range AuditQueues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func(q string, msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case merged <- delivery{queue: q, Delivery: d}:
				case <-done:
					return
				}
			}
		}(q, msgs)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-merged:
			if err := c.append(d.queue, d.Body); err != nil {
				log.Error("handle message failed", "queue", d.queue, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AuditConsumer) append(queue string, body []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	return handleMessage(f, queue, body, time.Now().UTC())
}

// handleMessage validates body against the event type of queue and writes
// one audit line to w.
func handleMessage(w io.Writer, queue string, body []byte, at time.Time) error {
	var target any
	switch queue {
	case BookingConfirmedQueue:
		target = &BookingConfirmedEvent{}
	case BookingCancelledQueue:
		target = &BookingCancelledEvent{}
	case DepartureFinalizedQueue:
		target = &DepartureFinalizedEvent{}
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	canonical, err := json.Marshal(target)
	if err != nil {
		return err
	}
	line, err := json.Marshal(auditLine{Queue: queue, ReceivedAt: at.Format(time.RFC3339), Event: canonical})
	if err != nil {
		return err
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
