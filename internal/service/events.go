package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cafe-order-service/internal/entity"

	"github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated   = "created"
	EventStatusChanged  = "status_changed"
	EventOrderCompleted = "completed"
)

// OrderEvent is the payload published on the order topic.
type OrderEvent struct {
	Type       string                        `json:"type"`
	Order      *entity.Order                 `json:"order"`
	Deductions []entity.InventoryTransaction `json:"deductions,omitempty"`
	OccurredAt time.Time                     `json:"occurred_at"`
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *OrderEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes order events keyed "order.<type>.<id>".
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(writer *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event *OrderEvent) error {
	orderJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// order.created.1 or order.completed.1
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order.%s.%d", event.Type, event.Order.ID)),
		Value: orderJSON,
	}

	return p.writer.WriteMessages(ctx, msg)
}

// publish runs after the database work is committed, so a broker failure
// cannot undo it; the error is only logged.
func publish(ctx context.Context, publisher EventPublisher, event *OrderEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger.Error().Err(err).Msgf("Error publishing %s event for order %d", event.Type, event.Order.ID)
	}
}
