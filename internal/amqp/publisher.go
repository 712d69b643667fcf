package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/tradesignals/checkout-api/internal/checkout"
)

var errNoURL = fmt.Errorf("%w: RABBIT_URL not set", checkout.ErrConfiguration)

// Publisher sends envelopes to a fanout exchange named after the topic.
// It satisfies checkout.EventPublisher.
type Publisher struct {
	conn *amqp091.Connection
}

func NewPublisher(url string, topics ...string) (*Publisher, error) {
	if url == "" {
		return nil, errNoURL
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	for _, t := range topics {
		if err := declareExchange(ch, t); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &Publisher{conn: conn}, nil
}

func declareExchange(ch *amqp091.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, key []byte, env checkout.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	return ch.PublishWithContext(ctx, topic, string(key), false, false, publishing(env, body))
}

func publishing(env checkout.Envelope, body []byte) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Type:          env.EventType,
		Timestamp:     env.OccurredAt,
		AppId:         env.Producer,
		Body:          body,
	}
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
