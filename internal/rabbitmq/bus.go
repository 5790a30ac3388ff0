// Package rabbitmq provides an additive, fire-and-forget audit bus: every
// successfully sent chat message is mirrored to an exchange for offline
// analytics/audit consumers. Publish failures are logged, never surfaced to
// the synchronous SEND_MESSAGE_RESP path - the bus augments the chat
// service, it does not gate it.
package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chirp-im/chirp/internal/protocol"
)

// Config describes the bus's connection and topology.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

// DefaultConfig returns chirp's default chat-audit topology.
func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		Exchange:   "chirp.chat.direct",
		Queue:      "chirp.chat.audit",
		RoutingKey: "chat.message.sent",
	}
}

// ChatEventBus publishes a ChatMessage envelope to RabbitMQ whenever
// SendMessage succeeds.
type ChatEventBus struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  Config
}

// Connect dials RabbitMQ, opens a channel, and declares the exchange/queue
// topology idempotently.
func Connect(cfg Config) (*ChatEventBus, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := prepareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &ChatEventBus{conn: conn, ch: ch, cfg: cfg}, nil
}

func prepareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil)
}

// PublishSent mirrors msg to the audit exchange. Callers treat a non-nil
// error as best-effort logging, not as a reason to fail the send.
func (b *ChatEventBus) PublishSent(ctx context.Context, msg protocol.ChatMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.ch.PublishWithContext(ctx,
		b.cfg.Exchange,
		b.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    msg.MessageID,
		})
}

// Close tears down the channel and connection.
func (b *ChatEventBus) Close() error {
	chErr := b.ch.Close()
	connErr := b.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

// Consumer drains cfg.Queue on its own goroutine, acking each delivery that
// handler processes successfully and nacking (with requeue) on failure -
// the same ack/nack discipline the teacher's MessageConsumer uses.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  Config
}

// ConnectConsumer dials RabbitMQ and declares the same topology PublishSent
// publishes into, independently of any ChatEventBus in this process.
func ConnectConsumer(cfg Config) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := prepareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, cfg: cfg}, nil
}

// Start launches the consume loop on a background goroutine; it returns
// once the initial Consume call succeeds. The loop exits when ctx is
// cancelled or the channel's delivery stream closes.
func (c *Consumer) Start(ctx context.Context, handler func(protocol.ChatMessage) error) error {
	deliveries, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				c.handleDelivery(delivery, handler)
			}
		}
	}()
	return nil
}

func (c *Consumer) handleDelivery(delivery amqp.Delivery, handler func(protocol.ChatMessage) error) {
	var msg protocol.ChatMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		_ = delivery.Nack(false, false)
		return
	}
	if err := handler(msg); err != nil {
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	chErr := c.ch.Close()
	connErr := c.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
