package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type sellerRepository struct {
	tx *pgTx
}

func scanSeller(row rowScanner) (domain.Seller, error) {
	var s domain.Seller
	if err := row.Scan(&s.ID, &s.AverageRating, &s.TotalReviews, &s.UpdatedAt); err != nil {
		return domain.Seller{}, err
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func (r sellerRepository) Get(ctx context.Context, id string) (domain.Seller, error) {
	seller, err := scanSeller(r.tx.tx.QueryRowContext(ctx, `
		SELECT id, average_rating, total_reviews, updated_at
		FROM sellers
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Seller{}, domain.ErrSellerNotFound
		}
		return domain.Seller{}, fmt.Errorf("select seller: %w", translate(err))
	}
	return seller, nil
}

func (r sellerRepository) Create(ctx context.Context, seller domain.Seller) (domain.Seller, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Seller{}, err
	}
	if seller.ID == "" {
		return domain.Seller{}, fmt.Errorf("%w: seller id is required", domain.ErrInvalidInput)
	}

	seller.UpdatedAt = r.tx.now()
	if _, err := r.tx.tx.ExecContext(ctx, `
		INSERT INTO sellers (id, average_rating, total_reviews, updated_at)
		VALUES ($1,$2,$3,$4)
	`, seller.ID, seller.AverageRating, seller.TotalReviews, seller.UpdatedAt); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return domain.Seller{}, fmt.Errorf("seller %s: %w", seller.ID, domain.ErrAlreadyExists)
		}
		return domain.Seller{}, fmt.Errorf("insert seller: %w", translate(err))
	}
	return seller, nil
}

// UpdateRating перезаписывает средний рейтинг; NULL означает, что отзывов нет.
func (r sellerRepository) UpdateRating(ctx context.Context, seller domain.Seller) (domain.Seller, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Seller{}, err
	}

	updated, err := scanSeller(r.tx.tx.QueryRowContext(ctx, `
		UPDATE sellers
		SET average_rating = $2, total_reviews = $3, updated_at = $4
		WHERE id = $1
		RETURNING id, average_rating, total_reviews, updated_at
	`, seller.ID, seller.AverageRating, seller.TotalReviews, r.tx.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Seller{}, domain.ErrSellerNotFound
		}
		return domain.Seller{}, fmt.Errorf("update seller rating: %w", translate(err))
	}
	return updated, nil
}

var _ domain.SellerStore = sellerRepository{}
