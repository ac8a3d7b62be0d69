package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// orderRepository: заказы внутри единицы работы.
type orderRepository struct {
	tx *memTx
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Order{}, err
	}
	if order.ID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", domain.ErrInvalidInput)
	}
	if _, exists := r.tx.store.orders[order.ID]; exists {
		return domain.Order{}, fmt.Errorf("order %s: %w", order.ID, domain.ErrAlreadyExists)
	}

	now := r.tx.store.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order.Version = 1

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.tx.store.orders[order.ID] = order.Clone()
	r.tx.record(func() { delete(r.tx.store.orders, order.ID) })
	return order.Clone(), nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	order, ok := r.tx.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// Update применяет fn к копии заказа и сохраняет её с новой версией.
func (r orderRepository) Update(ctx context.Context, id string, fn func(*domain.Order) error) (domain.Order, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Order{}, err
	}

	current, ok := r.tx.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Order{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = r.tx.store.now()

	r.tx.store.orders[id] = next.Clone()
	r.tx.record(func() { r.tx.store.orders[id] = current })
	return next, nil
}

// ListByBuyer возвращает заказы покупателя, новые первыми.
func (r orderRepository) ListByBuyer(ctx context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	return r.list(ctx, filter, func(o domain.Order) bool { return o.BuyerID == buyerID })
}

// ListBySeller возвращает заказы продавца, новые первыми.
func (r orderRepository) ListBySeller(ctx context.Context, sellerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	return r.list(ctx, filter, func(o domain.Order) bool { return o.SellerID == sellerID })
}

func (r orderRepository) list(ctx context.Context, filter domain.OrderFilter, match func(domain.Order) bool) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0)
	for _, order := range r.tx.store.orders {
		if !match(order) {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ domain.OrderStore = orderRepository{}
