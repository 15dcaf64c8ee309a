package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/carego/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpPublisher is the part of *amqp.Channel the writer uses.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPAuditWriter publishes each entry to a topic exchange, routed by action.
type AMQPAuditWriter struct {
	ch       amqpPublisher
	exchange string
}

func NewAMQPAuditWriter(ch amqpPublisher, exchange string) *AMQPAuditWriter {
	return &AMQPAuditWriter{ch: ch, exchange: exchange}
}

// DialAMQPAudit connects, declares the exchange and returns a writer plus a
// close function for shutdown.
func DialAMQPAudit(url, exchange string) (*AMQPAuditWriter, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewAMQPAuditWriter(ch, exchange), closeFn, nil
}

func (*AMQPAuditWriter) Name() string { return "amqp" }

func (w *AMQPAuditWriter) WriteAudit(ctx context.Context, e *store.AuditEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return w.ch.PublishWithContext(ctx, w.exchange, e.Action, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         e.Action,
		Body:         body,
	})
}
