package review

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Aggregator пересчитывает денормализованный рейтинг продавца по его отзывам.
type Aggregator struct{}

// NewAggregator создаёт агрегатор рейтинга.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Recompute выставляет продавцу среднюю оценку и количество отзывов в рамках переданной единицы работы.
// Без отзывов средняя оценка не определена. Для отсутствующего продавца возвращает ErrSellerNotFound.
func (a *Aggregator) Recompute(ctx context.Context, tx domain.Tx, sellerID string) (domain.Seller, error) {
	seller, err := tx.Sellers().Get(ctx, sellerID)
	if err != nil {
		return domain.Seller{}, err
	}

	stats, err := tx.Reviews().RatingStats(ctx, sellerID)
	if err != nil {
		return domain.Seller{}, fmt.Errorf("rating stats for seller %s: %w", sellerID, err)
	}

	seller.AverageRating, seller.TotalReviews = domain.RatingFromStats(stats)
	updated, err := tx.Sellers().UpdateRating(ctx, seller)
	if err != nil {
		return domain.Seller{}, fmt.Errorf("update rating for seller %s: %w", sellerID, err)
	}
	return updated, nil
}
