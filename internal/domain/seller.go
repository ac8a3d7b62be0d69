package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatingPrecision: число знаков после запятой в среднем рейтинге.
const RatingPrecision = 2

// Seller хранит денормализованный рейтинг продавца.
type Seller struct {
	ID string
	// AverageRating не определён (Valid=false), пока у продавца нет отзывов.
	AverageRating decimal.NullDecimal
	TotalReviews  int
	UpdatedAt     time.Time
}

// RatingFromStats считает средний рейтинг по агрегату. При нуле отзывов среднее не определено.
func RatingFromStats(stats RatingStats) (decimal.NullDecimal, int) {
	if stats.Count <= 0 {
		return decimal.NullDecimal{}, 0
	}
	avg := decimal.NewFromInt(stats.Sum).DivRound(decimal.NewFromInt(int64(stats.Count)), RatingPrecision)
	return decimal.NewNullDecimal(avg), stats.Count
}
