package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devpulse/sentiment-api/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher emits lifecycle events to the registry exchange. The tool
// registry is the production publisher; this side is used by integration
// tooling and smoke tests.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
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

	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, env models.EventEnvelope) error {
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		env.Type, // routing key mirrors the event type (tool.*)
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}
