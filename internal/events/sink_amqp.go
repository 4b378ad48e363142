package events

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the sink uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes events to a topic exchange with the event type as routing key.
type AMQPSink struct {
	ch       amqpChannel
	exchange string
}

// NewAMQPSink opens a channel on conn and declares a durable topic exchange.
func NewAMQPSink(conn *amqp.Connection, exchange string) (*AMQPSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPSink{ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Send(ctx context.Context, e Event) error {
	msg, err := buildPublishing(e)
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx, s.exchange, string(e.Type), false, false, msg)
}

func (s *AMQPSink) Close() error { return s.ch.Close() }

func buildPublishing(e Event) (amqp.Publishing, error) {
	body, err := sonic.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	}, nil
}
