package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Handler returns nil once the body is processed and may be acked.
type Handler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn   *amqp091.Connection
	queue  string
	logger *slog.Logger
}

// NewConsumer binds a durable queue to the topic's fanout exchange.
func NewConsumer(url, topic, queue string, logger *slog.Logger) (*Consumer, error) {
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

	if err := declareExchange(ch, topic); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, "", topic, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &Consumer{conn: conn, queue: queue, logger: logger}, nil
}

func (c *Consumer) Start(ctx context.Context, prefetch int, h Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("consumer channel closed", "queue", c.queue)
				return nil
			}
			c.handle(ctx, msg, h)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery, h Handler) {
	if err := h(ctx, msg.Body); err != nil {
		c.logger.Error("handle delivery", "queue", c.queue, "message_id", msg.MessageId, "err", err)
		time.Sleep(200 * time.Millisecond)
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Warn("ack delivery", "message_id", msg.MessageId, "err", err)
	}
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
