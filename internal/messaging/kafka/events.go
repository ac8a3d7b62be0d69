package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "marketplace.order.events"
	TopicReviewEvents    = "marketplace.review.events"
	TopicOrderCommands   = "marketplace.order.commands"
	TopicDeadLetterQueue = "marketplace.dlq"
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// TopicForAggregate выбирает topic для события outbox по типу агрегата.
func TopicForAggregate(aggregateType string) string {
	switch aggregateType {
	case domain.AggregateReview, domain.AggregateSeller:
		return TopicReviewEvents
	default:
		return TopicOrderEvents
	}
}

// CommandType: тип внешней команды над заказом.
type CommandType string

const (
	CommandPayment  CommandType = "payment"
	CommandShipment CommandType = "shipment"
	CommandDelivery CommandType = "delivery"
)

// PaymentPayload: данные об оплате от платёжного провайдера.
type PaymentPayload struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// ShippingPayload: данные об отправлении от службы доставки.
type ShippingPayload struct {
	RecipientName     string     `json:"recipient_name"`
	Address           string     `json:"address"`
	City              string     `json:"city"`
	State             string     `json:"state"`
	ZipCode           string     `json:"zip_code"`
	Country           string     `json:"country"`
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// OrderCommand: сообщение из topic marketplace.order.commands.
type OrderCommand struct {
	Type     CommandType      `json:"type"`
	OrderID  string           `json:"order_id"`
	Payment  *PaymentPayload  `json:"payment,omitempty"`
	Shipping *ShippingPayload `json:"shipping,omitempty"`
}

// PaymentDetails переводит payload в доменную структуру.
func (p PaymentPayload) PaymentDetails() domain.PaymentDetails {
	return domain.PaymentDetails{
		Method:        p.Method,
		TransactionID: p.TransactionID,
		Status:        domain.PaymentStatus(strings.ToUpper(p.Status)),
	}
}

// ShippingDetails переводит payload в доменную структуру.
func (s ShippingPayload) ShippingDetails() domain.ShippingDetails {
	return domain.ShippingDetails{
		RecipientName:     s.RecipientName,
		Address:           s.Address,
		City:              s.City,
		State:             s.State,
		ZipCode:           s.ZipCode,
		Country:           s.Country,
		Carrier:           s.Carrier,
		TrackingNumber:    s.TrackingNumber,
		EstimatedDelivery: s.EstimatedDelivery,
	}
}

// ParseOrderCommand разбирает и проверяет команду. Ошибки разбора не лечатся повтором.
func ParseOrderCommand(message *sarama.ConsumerMessage) (OrderCommand, error) {
	var cmd OrderCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return OrderCommand{}, Permanent(fmt.Errorf("failed to unmarshal order command: %w", err))
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return OrderCommand{}, Permanent(fmt.Errorf("order command without order_id"))
	}
	switch cmd.Type {
	case CommandPayment:
		if cmd.Payment == nil {
			return OrderCommand{}, Permanent(fmt.Errorf("payment command without payment"))
		}
	case CommandShipment:
		if cmd.Shipping == nil {
			return OrderCommand{}, Permanent(fmt.Errorf("shipment command without shipping"))
		}
	case CommandDelivery:
	default:
		return OrderCommand{}, Permanent(fmt.Errorf("unknown order command type %q", cmd.Type))
	}
	return cmd, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) (string, bool) {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value), true
		}
	}
	return "", false
}
