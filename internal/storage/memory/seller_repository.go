package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// sellerRepository: продавцы внутри единицы работы.
type sellerRepository struct {
	tx *memTx
}

// Get возвращает продавца или ErrSellerNotFound.
func (r sellerRepository) Get(ctx context.Context, id string) (domain.Seller, error) {
	if err := ctx.Err(); err != nil {
		return domain.Seller{}, err
	}
	seller, ok := r.tx.store.sellers[id]
	if !ok {
		return domain.Seller{}, domain.ErrSellerNotFound
	}
	return seller, nil
}

// Create сохраняет нового продавца с неопределённым рейтингом.
func (r sellerRepository) Create(ctx context.Context, seller domain.Seller) (domain.Seller, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Seller{}, err
	}
	if seller.ID == "" {
		return domain.Seller{}, fmt.Errorf("%w: seller id is required", domain.ErrInvalidInput)
	}
	if _, exists := r.tx.store.sellers[seller.ID]; exists {
		return domain.Seller{}, fmt.Errorf("seller %s: %w", seller.ID, domain.ErrAlreadyExists)
	}

	seller.UpdatedAt = r.tx.store.now()
	r.tx.store.sellers[seller.ID] = seller
	r.tx.record(func() { delete(r.tx.store.sellers, seller.ID) })
	return seller, nil
}

// UpdateRating перезаписывает средний рейтинг и количество отзывов.
func (r sellerRepository) UpdateRating(ctx context.Context, seller domain.Seller) (domain.Seller, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Seller{}, err
	}

	current, ok := r.tx.store.sellers[seller.ID]
	if !ok {
		return domain.Seller{}, domain.ErrSellerNotFound
	}

	next := current
	next.AverageRating = seller.AverageRating
	next.TotalReviews = seller.TotalReviews
	next.UpdatedAt = r.tx.store.now()

	r.tx.store.sellers[seller.ID] = next
	r.tx.record(func() { r.tx.store.sellers[seller.ID] = current })
	return next, nil
}

var _ domain.SellerStore = sellerRepository{}
