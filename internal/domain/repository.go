package domain

import "context"

// UnitOfWork выполняет функцию атомарно: либо применяются все записи, либо ни одна.
type UnitOfWork interface {
	// WithinTx открывает пишущую единицу работы. Ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// WithinReadTx открывает единицу работы только для чтения.
	WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx даёт доступ к хранилищам в рамках одной единицы работы.
type Tx interface {
	Listings() ListingStore
	Orders() OrderStore
	Reviews() ReviewStore
	Sellers() SellerStore
	Outbox() OutboxWriter
	Timeline() TimelineStore
}

// ListingStore описывает требования к хранилищу объявлений.
type ListingStore interface {
	// Get возвращает объявление или ErrListingNotFound.
	Get(ctx context.Context, id string) (Listing, error)
	// ConditionalUpdate применяет mutation, только если текущее состояние удовлетворяет cond.
	// Несовпадение условия возвращает ErrConflictRetryable.
	ConditionalUpdate(ctx context.Context, id string, cond ListingCondition, mutation ListingMutation) (Listing, error)
	// Create сохраняет новое объявление.
	Create(ctx context.Context, listing Listing) (Listing, error)
	// ListBySeller возвращает объявления продавца, новые первыми.
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]Listing, error)
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// Status, если задан, оставляет только заказы в этом статусе.
	Status OrderStatus
	// Limit > 0 ограничивает количество записей.
	Limit int
}

// OrderStore описывает требования к хранилищу заказов.
type OrderStore interface {
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// Create сохраняет новый заказ.
	Create(ctx context.Context, order Order) (Order, error)
	// Update читает заказ под блокировкой, применяет fn и сохраняет результат с новой версией.
	Update(ctx context.Context, id string, fn func(*Order) error) (Order, error)
	// ListByBuyer возвращает заказы покупателя, новые первыми.
	ListByBuyer(ctx context.Context, buyerID string, filter OrderFilter) ([]Order, error)
	// ListBySeller возвращает заказы продавца, новые первыми.
	ListBySeller(ctx context.Context, sellerID string, filter OrderFilter) ([]Order, error)
}

// ReviewStore описывает требования к хранилищу отзывов.
type ReviewStore interface {
	// Get возвращает отзыв или ErrReviewNotFound.
	Get(ctx context.Context, id string) (Review, error)
	// FindByOrderID возвращает отзыв по заказу; found=false, если его нет.
	FindByOrderID(ctx context.Context, orderID string) (Review, bool, error)
	// Create сохраняет отзыв. Второй отзыв на тот же заказ даёт ErrDuplicateReview.
	Create(ctx context.Context, review Review) (Review, error)
	// Update перезаписывает оценку и комментарий.
	Update(ctx context.Context, review Review) (Review, error)
	// Delete удаляет отзыв; ErrReviewNotFound, если его нет.
	Delete(ctx context.Context, id string) error
	// RatingStats возвращает количество и сумму оценок продавца.
	RatingStats(ctx context.Context, sellerID string) (RatingStats, error)
	// ListBySeller возвращает отзывы продавца, новые первыми.
	ListBySeller(ctx context.Context, sellerID string, limit int) ([]Review, error)
}

// SellerStore описывает требования к хранилищу продавцов.
type SellerStore interface {
	// Get возвращает продавца или ErrSellerNotFound.
	Get(ctx context.Context, id string) (Seller, error)
	// Create сохраняет нового продавца.
	Create(ctx context.Context, seller Seller) (Seller, error)
	// UpdateRating перезаписывает денормализованный рейтинг.
	UpdateRating(ctx context.Context, seller Seller) (Seller, error)
}

// OutboxWriter добавляет события в transactional outbox в рамках единицы работы.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// TimelineStore хранит историю статусов заказа.
type TimelineStore interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}
