package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const listingColumns = `id, seller_id, title, price, currency, image_urls, quantity, status, version, created_at, updated_at`

type listingRepository struct {
	tx *pgTx
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var (
		l      domain.Listing
		status string
		images []byte
	)
	if err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Price, &l.Currency, &images,
		&l.Quantity, &status, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return domain.Listing{}, err
	}
	l.Status = domain.ListingStatus(status)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &l.ImageURLs); err != nil {
			return domain.Listing{}, fmt.Errorf("decode listing images: %w", err)
		}
	}
	if len(l.ImageURLs) == 0 {
		l.ImageURLs = nil
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func (r listingRepository) Get(ctx context.Context, id string) (domain.Listing, error) {
	listing, err := scanListing(r.tx.tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("select listing: %w", translate(err))
	}
	return listing, nil
}

// ConditionalUpdate блокирует строку объявления, проверяет условие на свежем состоянии
// и записывает новый остаток со следующей версией.
func (r listingRepository) ConditionalUpdate(ctx context.Context, id string, cond domain.ListingCondition, mutation domain.ListingMutation) (domain.Listing, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Listing{}, err
	}

	current, err := scanListing(r.tx.tx.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("lock listing: %w", translate(err))
	}
	if !cond.Matches(current) {
		return domain.Listing{}, domain.ErrConflictRetryable
	}

	updated, err := mutation.Apply(current, r.tx.now())
	if err != nil {
		return domain.Listing{}, err
	}

	if _, err := r.tx.tx.ExecContext(ctx, `
		UPDATE listings
		SET quantity = $2,
		    status = $3,
		    version = $4,
		    updated_at = $5
		WHERE id = $1
	`, id, updated.Quantity, string(updated.Status), updated.Version, updated.UpdatedAt); err != nil {
		return domain.Listing{}, fmt.Errorf("update listing: %w", translate(err))
	}
	return updated, nil
}

func (r listingRepository) Create(ctx context.Context, listing domain.Listing) (domain.Listing, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Listing{}, err
	}
	if listing.ID == "" {
		return domain.Listing{}, fmt.Errorf("%w: listing id is required", domain.ErrInvalidInput)
	}

	now := r.tx.now()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = now
	if listing.Version == 0 {
		listing.Version = 1
	}
	images := listing.ImageURLs
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("encode listing images: %w", err)
	}

	if _, err := r.tx.tx.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		listing.ID, listing.SellerID, listing.Title, listing.Price, listing.Currency, string(encoded),
		listing.Quantity, string(listing.Status), listing.Version, listing.CreatedAt, listing.UpdatedAt,
	); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return domain.Listing{}, fmt.Errorf("listing %s: %w", listing.ID, domain.ErrAlreadyExists)
		}
		return domain.Listing{}, fmt.Errorf("insert listing: %w", translate(err))
	}
	return listing, nil
}

func (r listingRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{sellerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", translate(err))
	}
	defer rows.Close()

	result := make([]domain.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		result = append(result, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing rows: %w", err)
	}
	return result, nil
}

var _ domain.ListingStore = listingRepository{}
