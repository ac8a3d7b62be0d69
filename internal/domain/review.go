package domain

import "time"

const (
	// MinRating: минимальная оценка отзыва.
	MinRating = 1
	// MaxRating: максимальная оценка отзыва.
	MaxRating = 5
)

// Review: отзыв покупателя о продавце по доставленному заказу. На один заказ не больше одного отзыва.
type Review struct {
	ID       string
	SellerID string
	BuyerID  string
	OrderID  string
	Rating   int
	Comment  string
	// Verified всегда true для отзывов, созданных по доставленному заказу.
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidRating проверяет диапазон оценки.
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

// RatingStats: агрегат оценок продавца.
type RatingStats struct {
	Count int
	Sum   int64
}
