// Package events publishes order lifecycle events. Publishing is
// best-effort: a broker failure is logged by the caller and never fails the
// customer-facing request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const Topic = "order_events"

type Type string

const (
	OrderCreated     Type = "order_created"
	OrderCancelled   Type = "order_cancelled"
	ItemCancelled    Type = "item_cancelled"
	ItemReturned     Type = "item_returned"
	PaymentCompleted Type = "payment_completed"
	PaymentFailed    Type = "payment_failed"
)

type OrderEvent struct {
	EventID   string          `json:"event_id"`
	Type      Type            `json:"type"`
	OrderID   string          `json:"order_id"`
	UserID    uint            `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewProducer(address string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(address),
			Topic:    Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, event OrderEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// Nop is used in tests and when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) error { return nil }
