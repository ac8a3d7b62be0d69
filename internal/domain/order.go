package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency — валюта заказа, если позиции её не задают.
const DefaultCurrency = "EUR"

// OrderStatus описывает жизненный цикл заказа на маркетплейсе.
type OrderStatus string

const (
	// OrderStatusPending — товары зарезервированы, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusPaid — платёж завершён.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusShipped — передан перевозчику с трек-номером.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — доставлен покупателю, можно оставить отзыв.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — отменён, остатки возвращены.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded — деньги возвращены после оплаты.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// OrderItem — снимок объявления на момент покупки. После создания заказа не меняется.
type OrderItem struct {
	ListingID    string
	Title        string
	Quantity     int
	PricePerUnit decimal.Decimal
	ImageURL     string
}

// Subtotal возвращает цену позиции: PricePerUnit * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PricePerUnit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingDetails — адрес и данные отправления.
type ShippingDetails struct {
	RecipientName     string
	Address           string
	City              string
	State             string
	ZipCode           string
	Country           string
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
}

// Order агрегирует состояние заказа, его позиции и подсостояния оплаты и доставки.
type Order struct {
	ID          string
	BuyerID     string
	SellerID    string
	Items       []OrderItem
	TotalAmount decimal.Decimal
	Currency    string
	Status      OrderStatus
	Payment     PaymentDetails
	Shipping    ShippingDetails
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalOf суммирует позиции без потери точности.
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone возвращает глубокую копию заказа, чтобы хранилища не делили слайсы и указатели с вызывающим.
func (o Order) Clone() Order {
	out := o
	if o.Items != nil {
		out.Items = make([]OrderItem, len(o.Items))
		copy(out.Items, o.Items)
	}
	out.Payment.PaidAt = cloneTime(o.Payment.PaidAt)
	out.Shipping.EstimatedDelivery = cloneTime(o.Shipping.EstimatedDelivery)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
