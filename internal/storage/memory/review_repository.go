package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// reviewRepository: отзывы внутри единицы работы. Индекс reviewByOrder держит уникальность по заказу.
type reviewRepository struct {
	tx *memTx
}

// Get возвращает отзыв или ErrReviewNotFound.
func (r reviewRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return domain.Review{}, err
	}
	review, ok := r.tx.store.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	return review, nil
}

// FindByOrderID ищет отзыв по заказу.
func (r reviewRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Review, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Review{}, false, err
	}
	id, ok := r.tx.store.reviewByOrder[orderID]
	if !ok {
		return domain.Review{}, false, nil
	}
	return r.tx.store.reviews[id], true, nil
}

// Create сохраняет отзыв; второй отзыв на тот же заказ отклоняется.
func (r reviewRepository) Create(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Review{}, err
	}
	if review.ID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id is required", domain.ErrInvalidInput)
	}
	if _, exists := r.tx.store.reviewByOrder[review.OrderID]; exists {
		return domain.Review{}, domain.ErrDuplicateReview
	}
	if _, exists := r.tx.store.reviews[review.ID]; exists {
		return domain.Review{}, fmt.Errorf("review %s: %w", review.ID, domain.ErrAlreadyExists)
	}

	now := r.tx.store.now()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now

	r.tx.store.reviews[review.ID] = review
	r.tx.store.reviewByOrder[review.OrderID] = review.ID
	r.tx.record(func() {
		delete(r.tx.store.reviews, review.ID)
		delete(r.tx.store.reviewByOrder, review.OrderID)
	})
	return review, nil
}

// Update перезаписывает оценку и комментарий. Остальные поля берутся из хранилища.
func (r reviewRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Review{}, err
	}

	current, ok := r.tx.store.reviews[review.ID]
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}

	next := current
	next.Rating = review.Rating
	next.Comment = review.Comment
	next.UpdatedAt = r.tx.store.now()

	r.tx.store.reviews[review.ID] = next
	r.tx.record(func() { r.tx.store.reviews[review.ID] = current })
	return next, nil
}

// Delete удаляет отзыв и освобождает заказ для нового отзыва.
func (r reviewRepository) Delete(ctx context.Context, id string) error {
	if err := r.tx.writable(ctx); err != nil {
		return err
	}

	current, ok := r.tx.store.reviews[id]
	if !ok {
		return domain.ErrReviewNotFound
	}

	delete(r.tx.store.reviews, id)
	delete(r.tx.store.reviewByOrder, current.OrderID)
	r.tx.record(func() {
		r.tx.store.reviews[id] = current
		r.tx.store.reviewByOrder[current.OrderID] = id
	})
	return nil
}

// RatingStats считает количество и сумму оценок продавца по текущему состоянию единицы работы.
func (r reviewRepository) RatingStats(ctx context.Context, sellerID string) (domain.RatingStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.RatingStats{}, err
	}

	var stats domain.RatingStats
	for _, review := range r.tx.store.reviews {
		if review.SellerID != sellerID {
			continue
		}
		stats.Count++
		stats.Sum += int64(review.Rating)
	}
	return stats, nil
}

// ListBySeller возвращает отзывы продавца, новые первыми.
func (r reviewRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Review, 0)
	for _, review := range r.tx.store.reviews {
		if review.SellerID == sellerID {
			result = append(result, review)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.ReviewStore = reviewRepository{}
