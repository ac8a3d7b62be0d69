package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	store := NewStore()

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"status":"PENDING"}`),
	}

	var saved domain.OutboxMessage
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		saved, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := store.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}
}

func TestOutboxRepository_PullKeepsInsertionOrder(t *testing.T) {
	store := NewStore()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []string{"m-3", "m-1", "m-2"} {
			if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{ID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending, err := store.PullPending(2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "m-3" || pending[1].ID != "m-1" {
		t.Fatalf("unexpected pending order: %+v", pending)
	}
}

func TestOutboxRepository_RolledBackWithUnit(t *testing.T) {
	store := NewStore()
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{EventType: domain.EventOrderCreated}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := len(store.AllPending()); got != 0 {
		t.Fatalf("expected no pending messages after rollback, got %d", got)
	}
	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected empty backlog, got %d", stats.PendingCount)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))

	var first, second domain.OutboxMessage
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		if first, err = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder}); err != nil {
			return err
		}
		second, err = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateReview})
		return err
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || !stats.OldestPendingAt.Equal(now) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := store.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := store.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if got := len(store.AllPending()); got != 0 {
		t.Fatalf("expected no pending messages, got %d", got)
	}
	if store.outbox[first.ID].status != outboxStatusSent {
		t.Fatalf("expected sent status, got %s", store.outbox[first.ID].status)
	}
	if store.outbox[second.ID].status != outboxStatusFailed {
		t.Fatalf("expected failed status, got %s", store.outbox[second.ID].status)
	}

	if err := store.MarkSent("missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for unknown id, got %v", err)
	}
}

func TestOutboxRepository_PurgeSent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store := NewStore(WithClock(func() time.Time { return clock }))

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []string{"old-1", "old-2", "old-3", "fresh", "pending", "failed"} {
			if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{ID: id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	for _, id := range []string{"old-1", "old-2", "old-3"} {
		if err := store.MarkSent(id); err != nil {
			t.Fatalf("mark sent %s: %v", id, err)
		}
	}
	if err := store.MarkFailed("failed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	clock = now.Add(2 * time.Hour)
	if err := store.MarkSent("fresh"); err != nil {
		t.Fatalf("mark sent fresh: %v", err)
	}

	cutoff := now.Add(time.Hour)
	deleted, err := store.PurgeSent(cutoff, 2)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 purged in first batch, got %d", deleted)
	}

	deleted, err = store.PurgeSent(cutoff, 2)
	if err != nil {
		t.Fatalf("second purge failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 purged in second batch, got %d", deleted)
	}

	for _, id := range []string{"fresh", "pending", "failed"} {
		if _, ok := store.outbox[id]; !ok {
			t.Fatalf("expected %s to survive purge", id)
		}
	}
	if len(store.outboxOrder) != 3 {
		t.Fatalf("expected 3 ids left in order, got %v", store.outboxOrder)
	}

	if deleted, _ := store.PurgeSent(cutoff, 0); deleted != 0 {
		t.Fatalf("expected no-op for zero limit, got %d", deleted)
	}
}
