package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// OrderCommands: операции заказа, которые запускаются внешними событиями.
type OrderCommands interface {
	RecordPayment(ctx context.Context, orderID string, payment domain.PaymentDetails) (domain.Order, error)
	RecordShipment(ctx context.Context, orderID string, shipping domain.ShippingDetails) (domain.Order, error)
	MarkDelivered(ctx context.Context, orderID string) (domain.Order, error)
}

// NewCommandHandler возвращает MessageHandler для topic marketplace.order.commands.
// Конфликты и внутренние ошибки повторяются, отказы бизнес-правил уходят в DLQ.
func NewCommandHandler(orders OrderCommands, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.New().WithField("component", "order-command-handler")
	}
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		cmd, err := ParseOrderCommand(message)
		if err != nil {
			return err
		}

		var updated domain.Order
		switch cmd.Type {
		case CommandPayment:
			updated, err = orders.RecordPayment(ctx, cmd.OrderID, cmd.Payment.PaymentDetails())
		case CommandShipment:
			updated, err = orders.RecordShipment(ctx, cmd.OrderID, cmd.Shipping.ShippingDetails())
		case CommandDelivery:
			updated, err = orders.MarkDelivered(ctx, cmd.OrderID)
		}
		if err != nil {
			return classify(err)
		}

		logger.WithFields(log.Fields{
			"order_id": updated.ID,
			"command":  cmd.Type,
			"status":   updated.Status,
		}).Info("order command applied")
		return nil
	}
}

func classify(err error) error {
	switch domain.Kind(err) {
	case domain.KindConflict, domain.KindInternal:
		return err
	default:
		return Permanent(err)
	}
}
