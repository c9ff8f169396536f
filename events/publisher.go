// Package events publishes stock-change notifications so other consumers
// (replicas, search indexers) can react to catalog writes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const publishTimeout = 5 * time.Second

// StockChanged announces that a checkout decremented a product's stock.
type StockChanged struct {
	EventID   string    `json:"event_id"`
	ProductID int64     `json:"product_id"`
	Stock     int       `json:"stock"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends StockChanged events to a durable topic exchange with
// publisher confirms.
type Publisher struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	notifyConfirm chan amqp.Confirmation
	exchange      string
	routingKey    string

	// mu pairs each publish with its confirm; concurrent publishes on the
	// shared channel would otherwise read each other's confirmations.
	mu sync.Mutex
}

// NewPublisher dials RabbitMQ, opens a confirmed channel and declares the
// exchange.
func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("channel could not be put into confirm mode: %w", err)
	}
	notifyConfirm := make(chan amqp.Confirmation, 1)
	ch.NotifyPublish(notifyConfirm)

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("Stock event publisher ready")
	return &Publisher{
		conn:          conn,
		channel:       ch,
		notifyConfirm: notifyConfirm,
		exchange:      exchange,
		routingKey:    routingKey,
	}, nil
}

// PublishStockChanged sends one event and waits for the broker confirm.
// A zero EventID is filled in.
func (p *Publisher) PublishStockChanged(ctx context.Context, ev StockChanged) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.EventID,
			Timestamp:    ev.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	select {
	case confirm := <-p.notifyConfirm:
		if confirm.Ack {
			return nil
		}
		return errors.New("event published but not confirmed by broker")
	case <-time.After(publishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing publisher channel")
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing RabbitMQ connection")
		}
	}
}
