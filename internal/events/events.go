// Package events publishes session lifecycle events to RabbitMQ so that
// downstream workers (optimization, export, analytics) learn about new and
// removed sessions without polling the store.
//
// Events are published on a durable topic exchange with routing keys of the
// form "session.<type>", e.g. "session.saved". Payloads never carry the
// email address or the CV body.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// Type is the kind of lifecycle change.
type Type string

const (
	SessionSaved     Type = "saved"
	SessionDeleted   Type = "deleted"
	SessionExpired   Type = "expired"
	SessionRecovered Type = "recovered"
)

// Event is the message body.
//
// JSON example:
//
//	{"type":"saved","sessionId":"cs_test_a1b2c3","plan":"premium","hasEmail":true,"cvLength":4821,"timestamp":"2025-01-15T10:31:12Z"}
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId"`
	Plan      string    `json:"plan,omitempty"`
	HasEmail  bool      `json:"hasEmail"`
	CVLength  int       `json:"cvLength,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RoutingKey returns the topic routing key for the event.
func (e Event) RoutingKey() string {
	return "session." + string(e.Type)
}

// Publisher sends lifecycle events. Publishing is best effort: callers log
// failures and never fail a store operation because of them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards every event. Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// AMQPPublisher publishes events on one long-lived channel.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker with retry and declares the exchange.
//
// Example:
//
//	pub, err := events.NewAMQPPublisher(&cfg.Events)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
//	}
//	defer pub.Close()
func NewAMQPPublisher(cfg *config.EventsConfig) (*AMQPPublisher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := utils.RetryWithResult(ctx, utils.DatabaseRetryConfig(), func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to RabbitMQ, retrying...")
		}
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Info().Str("exchange", cfg.Exchange).Msg("Connected to RabbitMQ")

	return &AMQPPublisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

// Publish sends one persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(
		p.exchange,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.RoutingKey(), err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return p.conn.Close()
}
