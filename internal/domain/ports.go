package domain

import "time"

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository используется воркером публикации вне единиц работы.
type OutboxRepository interface {
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPurger удаляет опубликованные сообщения старше before, не более limit за вызов.
type OutboxPurger interface {
	PurgeSent(before time.Time, limit int) (int, error)
}

// Типы агрегатов в outbox.
const (
	AggregateOrder  = "order"
	AggregateReview = "review"
	AggregateSeller = "seller"
)

// Типы событий outbox.
const (
	EventOrderCreated        = "OrderCreated"
	EventOrderStatusChanged  = "OrderStatusChanged"
	EventOrderCancelled      = "OrderCancelled"
	EventOrderRefunded       = "OrderRefunded"
	EventPaymentRecorded     = "PaymentRecorded"
	EventShipmentRecorded    = "ShipmentRecorded"
	EventReviewCreated       = "ReviewCreated"
	EventReviewUpdated       = "ReviewUpdated"
	EventReviewDeleted       = "ReviewDeleted"
	EventSellerRatingUpdated = "SellerRatingUpdated"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
