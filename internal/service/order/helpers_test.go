package order_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/order"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func fastRetry() *retry.Policy {
	return retry.NewPolicy(retry.Config{MaxAttempts: 3}, retry.WithLogger(quietLogger()))
}

type harness struct {
	store *memory.Store
	svc   *order.Service
	inv   *recordingInvalidator
}

func newHarness(t *testing.T, opts ...order.Option) *harness {
	t.Helper()
	store := memory.NewStore(memory.WithClock(func() time.Time { return fixedNow }))
	inv := &recordingInvalidator{}

	var seq atomic.Int64
	base := []order.Option{
		order.WithLogger(quietLogger()),
		order.WithRetryPolicy(fastRetry()),
		order.WithClock(func() time.Time { return fixedNow }),
		order.WithInvalidator(inv),
		order.WithIDGenerator(func() string { return fmt.Sprintf("order-%d", seq.Add(1)) }),
	}
	return &harness{
		store: store,
		svc:   order.NewService(store, append(base, opts...)...),
		inv:   inv,
	}
}

func (h *harness) seedListing(t *testing.T, listing domain.Listing) {
	t.Helper()
	if listing.SellerID == "" {
		listing.SellerID = "seller-1"
	}
	if listing.Status == "" {
		listing.Status = domain.ListingStatusActive
	}
	if listing.Title == "" {
		listing.Title = "Listing " + listing.ID
	}
	err := h.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Listings().Create(ctx, listing)
		return err
	})
	require.NoError(t, err)
}

func (h *harness) listing(t *testing.T, id string) domain.Listing {
	t.Helper()
	var out domain.Listing
	err := h.store.WithinReadTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Listings().Get(ctx, id)
		return err
	})
	require.NoError(t, err)
	return out
}

func (h *harness) order(t *testing.T, id string) domain.Order {
	t.Helper()
	var out domain.Order
	err := h.store.WithinReadTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Orders().Get(ctx, id)
		return err
	})
	require.NoError(t, err)
	return out
}

func (h *harness) timeline(t *testing.T, orderID string) []domain.TimelineEvent {
	t.Helper()
	var out []domain.TimelineEvent
	err := h.store.WithinReadTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Timeline().List(ctx, orderID)
		return err
	})
	require.NoError(t, err)
	return out
}

func (h *harness) outboxTypes() []string {
	pending := h.store.AllPending()
	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		types = append(types, msg.EventType)
	}
	return types
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingInvalidator) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), keys...))
	return r.err
}

func (r *recordingInvalidator) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

// conflictingUOW проигрывает гонку заданное число раз, затем делегирует в настоящее хранилище.
type conflictingUOW struct {
	domain.UnitOfWork
	failures atomic.Int32
	attempts atomic.Int32
}

func (u *conflictingUOW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	u.attempts.Add(1)
	if u.failures.Load() > 0 {
		u.failures.Add(-1)
		return u.UnitOfWork.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return domain.ErrConflictRetryable
		})
	}
	return u.UnitOfWork.WithinTx(ctx, fn)
}
