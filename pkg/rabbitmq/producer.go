/**
 * @description
 * This package provides a producer for publishing ledger events to RabbitMQ.
 * Events are emitted only after the corresponding unit of work has committed;
 * downstream consumers (notification, reporting) therefore never observe an
 * event for a mutation that was rolled back.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/corebank/ledger-service/internal/domain"
	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish ledger events.
type Publisher interface {
	PublishEntryPosted(ctx context.Context, event domain.EntryPostedEvent) error
	PublishTransferCompleted(ctx context.Context, event domain.TransferCompletedEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NopProducer is a minimal no-op publisher used when RabbitMQ is not
// configured or unavailable at startup. Ledger correctness never depends on
// event delivery, so degrading to a no-op is safe.
type NopProducer struct{}

func (p *NopProducer) PublishEntryPosted(ctx context.Context, event domain.EntryPostedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"entry posted event skipped\" transaction_id=%s", event.TransactionID)
	return nil
}

func (p *NopProducer) PublishTransferCompleted(ctx context.Context, event domain.TransferCompletedEvent) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"transfer completed event skipped\" event_id=%s", event.EventID)
	return nil
}

func (p *NopProducer) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer bound to a durable
// topic exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *EventProducer) publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" routing_key=%s err=%v", routingKey, err)
		return err
	}

	publishing := amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        jsonBody,
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, publishing)
	if err == nil {
		return nil
	}

	// One-shot retry: reopen the channel and try again.
	log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" routing_key=%s err=%v", routingKey, err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return err
	}
	p.channel = ch
	if exErr := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); exErr != nil {
		return exErr
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, publishing)
}

// PublishEntryPosted publishes a committed ledger entry event.
func (p *EventProducer) PublishEntryPosted(ctx context.Context, event domain.EntryPostedEvent) error {
	return p.publish(ctx, "ledger.entry."+string(event.Kind), event)
}

// PublishTransferCompleted publishes a completed internal transfer event.
func (p *EventProducer) PublishTransferCompleted(ctx context.Context, event domain.TransferCompletedEvent) error {
	return p.publish(ctx, "ledger.transfer.completed", event)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
