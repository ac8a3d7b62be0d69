package review

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ReviewEvent: полезная нагрузка событий отзыва в outbox.
type ReviewEvent struct {
	EventType  string    `json:"event_type"`
	ReviewID   string    `json:"review_id"`
	OrderID    string    `json:"order_id"`
	SellerID   string    `json:"seller_id"`
	BuyerID    string    `json:"buyer_id"`
	Rating     int       `json:"rating"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SellerRatingEvent: полезная нагрузка события SellerRatingUpdated.
// AverageRating равен null, когда у продавца нет отзывов.
type SellerRatingEvent struct {
	EventType     string              `json:"event_type"`
	SellerID      string              `json:"seller_id"`
	AverageRating decimal.NullDecimal `json:"average_rating"`
	TotalReviews  int                 `json:"total_reviews"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

func newReviewEvent(r domain.Review, eventType string, now time.Time) ReviewEvent {
	return ReviewEvent{
		EventType:  eventType,
		ReviewID:   r.ID,
		OrderID:    r.OrderID,
		SellerID:   r.SellerID,
		BuyerID:    r.BuyerID,
		Rating:     r.Rating,
		OccurredAt: now,
	}
}

func newSellerRatingEvent(s domain.Seller, now time.Time) SellerRatingEvent {
	return SellerRatingEvent{
		EventType:     domain.EventSellerRatingUpdated,
		SellerID:      s.ID,
		AverageRating: s.AverageRating,
		TotalReviews:  s.TotalReviews,
		OccurredAt:    now,
	}
}
