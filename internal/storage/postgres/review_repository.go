package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	reviewColumns               = `id, seller_id, buyer_id, order_id, rating, comment, verified, created_at, updated_at`
	reviewOrderUniqueConstraint = "reviews_order_id_key"
)

type reviewRepository struct {
	tx *pgTx
}

func scanReview(row rowScanner) (domain.Review, error) {
	var rv domain.Review
	if err := row.Scan(
		&rv.ID, &rv.SellerID, &rv.BuyerID, &rv.OrderID, &rv.Rating,
		&rv.Comment, &rv.Verified, &rv.CreatedAt, &rv.UpdatedAt,
	); err != nil {
		return domain.Review{}, err
	}
	rv.CreatedAt = rv.CreatedAt.UTC()
	rv.UpdatedAt = rv.UpdatedAt.UTC()
	return rv, nil
}

func (r reviewRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	rv, err := scanReview(r.tx.tx.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("select review: %w", translate(err))
	}
	return rv, nil
}

func (r reviewRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Review, bool, error) {
	rv, err := scanReview(r.tx.tx.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, fmt.Errorf("select review by order: %w", translate(err))
	}
	return rv, true, nil
}

// Create вставляет отзыв. Уникальный индекс по order_id ловит гонку двух отзывов на один заказ.
func (r reviewRepository) Create(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Review{}, err
	}
	if review.ID == "" {
		return domain.Review{}, fmt.Errorf("%w: review id is required", domain.ErrInvalidInput)
	}

	now := r.tx.now()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now

	if _, err := r.tx.tx.ExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		review.ID, review.SellerID, review.BuyerID, review.OrderID, review.Rating,
		review.Comment, review.Verified, review.CreatedAt, review.UpdatedAt,
	); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == reviewOrderUniqueConstraint {
				return domain.Review{}, domain.ErrDuplicateReview
			}
			return domain.Review{}, fmt.Errorf("review %s: %w", review.ID, domain.ErrAlreadyExists)
		}
		return domain.Review{}, fmt.Errorf("insert review: %w", translate(err))
	}
	return review, nil
}

func (r reviewRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Review{}, err
	}

	updated, err := scanReview(r.tx.tx.QueryRowContext(ctx, `
		UPDATE reviews
		SET rating = $2, comment = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+reviewColumns,
		review.ID, review.Rating, review.Comment, r.tx.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrReviewNotFound
		}
		return domain.Review{}, fmt.Errorf("update review: %w", translate(err))
	}
	return updated, nil
}

func (r reviewRepository) Delete(ctx context.Context, id string) error {
	if err := r.tx.writable(ctx); err != nil {
		return err
	}

	res, err := r.tx.tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", translate(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReviewNotFound
	}
	return nil
}

// RatingStats считает агрегат в той же транзакции, поэтому видит только что записанный отзыв.
// Строка продавца блокируется до подсчёта: параллельные отзывы одному продавцу
// пересчитывают рейтинг по очереди и не теряют друг друга.
func (r reviewRepository) RatingStats(ctx context.Context, sellerID string) (domain.RatingStats, error) {
	if !r.tx.readOnly {
		if _, err := r.tx.tx.ExecContext(ctx, `SELECT 1 FROM sellers WHERE id = $1 FOR UPDATE`, sellerID); err != nil {
			return domain.RatingStats{}, fmt.Errorf("lock seller: %w", translate(err))
		}
	}

	var stats domain.RatingStats
	if err := r.tx.tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(rating), 0)
		FROM reviews
		WHERE seller_id = $1
	`, sellerID).Scan(&stats.Count, &stats.Sum); err != nil {
		return domain.RatingStats{}, fmt.Errorf("rating stats: %w", translate(err))
	}
	return stats, nil
}

func (r reviewRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE seller_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{sellerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", translate(err))
	}
	defer rows.Close()

	result := make([]domain.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		result = append(result, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return result, nil
}

var _ domain.ReviewStore = reviewRepository{}
