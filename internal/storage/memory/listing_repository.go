package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// listingRepository: объявления внутри единицы работы.
type listingRepository struct {
	tx *memTx
}

// Get возвращает копию объявления или ErrListingNotFound.
func (r listingRepository) Get(ctx context.Context, id string) (domain.Listing, error) {
	if err := ctx.Err(); err != nil {
		return domain.Listing{}, err
	}
	listing, ok := r.tx.store.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return cloneListing(listing), nil
}

// ConditionalUpdate применяет изменение остатка, если условие выполняется на текущем состоянии.
func (r listingRepository) ConditionalUpdate(ctx context.Context, id string, cond domain.ListingCondition, mutation domain.ListingMutation) (domain.Listing, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Listing{}, err
	}

	current, ok := r.tx.store.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	if !cond.Matches(current) {
		return domain.Listing{}, domain.ErrConflictRetryable
	}

	updated, err := mutation.Apply(current, r.tx.store.now())
	if err != nil {
		return domain.Listing{}, err
	}

	r.tx.store.listings[id] = updated
	r.tx.record(func() { r.tx.store.listings[id] = current })
	return cloneListing(updated), nil
}

// Create сохраняет новое объявление, если ID ещё не занят.
func (r listingRepository) Create(ctx context.Context, listing domain.Listing) (domain.Listing, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Listing{}, err
	}
	if listing.ID == "" {
		return domain.Listing{}, fmt.Errorf("%w: listing id is required", domain.ErrInvalidInput)
	}
	if _, exists := r.tx.store.listings[listing.ID]; exists {
		return domain.Listing{}, fmt.Errorf("listing %s: %w", listing.ID, domain.ErrAlreadyExists)
	}

	now := r.tx.store.now()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = now
	if listing.Version == 0 {
		listing.Version = 1
	}

	stored := cloneListing(listing)
	r.tx.store.listings[listing.ID] = stored
	r.tx.record(func() { delete(r.tx.store.listings, listing.ID) })
	return cloneListing(stored), nil
}

// ListBySeller возвращает объявления продавца, новые первыми.
func (r listingRepository) ListBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Listing, 0)
	for _, listing := range r.tx.store.listings {
		if listing.SellerID != sellerID {
			continue
		}
		result = append(result, cloneListing(listing))
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

func cloneListing(l domain.Listing) domain.Listing {
	if l.ImageURLs != nil {
		images := make([]string, len(l.ImageURLs))
		copy(images, l.ImageURLs)
		l.ImageURLs = images
	}
	return l
}

var _ domain.ListingStore = listingRepository{}
