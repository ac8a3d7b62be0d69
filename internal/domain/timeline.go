package domain

import "time"

// TimelineEvent описывает шаг истории заказа: тип события, переход статуса и причину.
type TimelineEvent struct {
	OrderID string
	Type    string
	// From пуст для события создания заказа.
	From     OrderStatus
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}

// ChangedStatus сообщает, что событие переводило заказ в другой статус.
func (e TimelineEvent) ChangedStatus() bool {
	return e.From != e.Status
}
