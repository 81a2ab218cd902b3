package events

import (
	"context"

	"github.com/devpulse/sentiment-api/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one decoded lifecycle event. Returning an error
// requeues the message.
type Handler func(ctx context.Context, env models.EventEnvelope) error

// Consumer reads tool-registry lifecycle events from a durable queue
// bound to the registry's topic exchange.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	handler Handler
	logger  zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, exchange, routingKey, queue string, handler Handler, logger zerolog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, err
	}

	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return nil, err
	}

	// One in-flight event at a time; triggers are cheap and ordering
	// matters for merges.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return &Consumer{
		channel: ch,
		queue:   queue,
		handler: handler,
		logger:  logger.With().Str("component", "event_consumer").Logger(),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Event consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn().Msg("Event channel closed")
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	env, err := Decode(msg.Body)
	if err != nil {
		c.logger.Error().Err(err).Msg("Dropping undecodable lifecycle event")
		msg.Nack(false, false)
		return
	}

	if err := c.handler(ctx, env); err != nil {
		c.logger.Error().Err(err).Str("event_type", env.Type).Msg("Failed to handle lifecycle event, requeueing")
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}
