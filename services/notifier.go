package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"yad2-pipeline/models"
	"yad2-pipeline/utils"
)

// Notifier announces new snapshots to downstream consumers.
type Notifier interface {
	Publish(ctx context.Context, ev models.SnapshotEvent) error
	Close() error
}

// NewNotifier returns an AMQP notifier, or a no-op one when url is empty.
func NewNotifier(url, queue string, logger *utils.Logger) (Notifier, error) {
	if url == "" {
		logger.Debug("[notify] AMQP_URL not set — snapshot events disabled")
		return nopNotifier{}, nil
	}
	return NewAMQPNotifier(url, queue)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, models.SnapshotEvent) error { return nil }
func (nopNotifier) Close() error                                      { return nil }

// AMQPNotifier publishes snapshot events as persistent JSON messages.
type AMQPNotifier struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPNotifier dials the broker and declares a durable queue.
func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare queue %q: %w", queue, err)
	}

	return &AMQPNotifier{conn: conn, ch: ch, queue: queue}, nil
}

func (n *AMQPNotifier) Publish(ctx context.Context, ev models.SnapshotEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("amqp: encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.RunID,
		Timestamp:    ev.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		_ = n.conn.Close()
		return err
	}
	return n.conn.Close()
}
