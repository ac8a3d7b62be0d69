package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// OrderEvent: полезная нагрузка событий заказа в outbox.
type OrderEvent struct {
	EventType      string           `json:"event_type"`
	OrderID        string           `json:"order_id"`
	BuyerID        string           `json:"buyer_id"`
	SellerID       string           `json:"seller_id"`
	Status         string           `json:"status"`
	PreviousStatus string           `json:"previous_status,omitempty"`
	PaymentStatus  string           `json:"payment_status,omitempty"`
	TrackingNumber string           `json:"tracking_number,omitempty"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	Currency       string           `json:"currency"`
	Items          []OrderEventItem `json:"items,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// OrderEventItem: позиция заказа в событии.
type OrderEventItem struct {
	ListingID    string          `json:"listing_id"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

func newOrderEvent(order domain.Order, eventType string, previous domain.OrderStatus, reason string, now time.Time) OrderEvent {
	event := OrderEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.Payment.Status),
		TrackingNumber: order.Shipping.TrackingNumber,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		Reason:         reason,
		OccurredAt:     now,
	}
	if previous != "" && previous != order.Status {
		event.PreviousStatus = string(previous)
	}

	// Позиции нужны потребителям только там, где меняются остатки.
	switch eventType {
	case domain.EventOrderCreated, domain.EventOrderCancelled, domain.EventOrderRefunded:
		event.Items = make([]OrderEventItem, 0, len(order.Items))
		for _, item := range order.Items {
			event.Items = append(event.Items, OrderEventItem{
				ListingID:    item.ListingID,
				Quantity:     item.Quantity,
				PricePerUnit: item.PricePerUnit,
			})
		}
	}
	return event
}
