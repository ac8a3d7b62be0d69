package domain

// CanTransition сообщает, допустим ли переход статуса заказа from -> to.
//
// Граф переходов:
//
//	PENDING -> PAID | CANCELLED
//	PAID    -> SHIPPED | CANCELLED | REFUNDED
//	SHIPPED -> DELIVERED
//
// DELIVERED, CANCELLED и REFUNDED терминальны.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusPaid || to == OrderStatusCancelled
	case OrderStatusPaid:
		return to == OrderStatusShipped || to == OrderStatusCancelled || to == OrderStatusRefunded
	case OrderStatusShipped:
		return to == OrderStatusDelivered
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return false
	default:
		return false
	}
}

// IsTerminal сообщает, что из статуса нет исходящих переходов.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// AcceptsDetails сообщает, можно ли ещё менять подсостояния оплаты и доставки.
func (s OrderStatus) AcceptsDetails() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped:
		return true
	default:
		return false
	}
}
