package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cafe-order-service/internal/entity"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Completer finalizes a paid order.
type Completer interface {
	CompleteOrder(ctx context.Context, orderID int64, method entity.PaymentMethod, actor entity.Actor) (*entity.Order, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// PaymentConfirmation is the payload of a payment.confirmed.<orderID> message.
type PaymentConfirmation struct {
	OrderID       int64                `json:"order_id"`
	PaymentMethod entity.PaymentMethod `json:"payment_method"`
}

type Consumer struct {
	reader    messageReader
	completer Completer
}

func NewConsumer(reader *kafka.Reader, completer Completer) *Consumer {
	return &Consumer{reader: reader, completer: completer}
}

// Start reads payment messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Payment consumer stopped")
				return
			}
			log.Error().Msgf("Error reading message: %v", err)
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage handles one message. Failures are logged and the message is
// not retried; the cashier can still complete the order by hand.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	// key -> "payment.confirmed.orderID"
	listKey := strings.Split(string(msg.Key), ".")
	if len(listKey) < 2 || listKey[0] != "payment" {
		log.Error().Msgf("Unknown message key: %s", msg.Key)
		return
	}

	switch listKey[1] {
	case "confirmed":
		var confirmation PaymentConfirmation
		if err := json.Unmarshal(msg.Value, &confirmation); err != nil {
			log.Error().Msgf("Error unmarshalling message: %v", err)
			return
		}

		_, err := c.completer.CompleteOrder(ctx, confirmation.OrderID, confirmation.PaymentMethod, entity.SystemActor)
		switch {
		case err == nil:
			log.Info().Msgf("Order %d completed from payment confirmation", confirmation.OrderID)
		case errors.Is(err, entity.ErrInsufficientStock):
			log.Warn().Err(err).Msgf("Paid order %d is short on stock", confirmation.OrderID)
		default:
			log.Error().Err(err).Msgf("Error completing order %d", confirmation.OrderID)
		}
	default:
		log.Debug().Msgf("Ignoring payment event %s", listKey[1])
	}
}
