package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	explicit := createdAt.Add(10 * time.Second)

	withinTxForIntegrationTest(t, store, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  "timeline-order",
			Type:     domain.EventShipmentRecorded,
			From:     domain.OrderStatusPaid,
			Status:   domain.OrderStatusShipped,
			Reason:   "shipped",
			Occurred: explicit,
		}); err != nil {
			return err
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  "timeline-order",
			Type:     domain.EventOrderCreated,
			Status:   domain.OrderStatusPending,
			Occurred: createdAt,
		})
	})

	withinTxForIntegrationTest(t, store, func(ctx context.Context, tx domain.Tx) error {
		// Нулевое время заполняется часами хранилища.
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID: "timeline-order",
			Type:    domain.EventOrderStatusChanged,
			Status:  domain.OrderStatusDelivered,
		})
	})

	var events []domain.TimelineEvent
	if err := store.WithinReadTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		events, err = tx.Timeline().List(ctx, "timeline-order")
		return err
	}); err != nil {
		t.Fatalf("list timeline: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 timeline events, got %d", len(events))
	}
	if events[0].Type != domain.EventOrderCreated || events[1].Type != domain.EventShipmentRecorded {
		t.Fatalf("timeline must be chronological: %+v", events)
	}
	if events[1].From != domain.OrderStatusPaid || events[1].Status != domain.OrderStatusShipped || events[1].Reason != "shipped" {
		t.Fatalf("unexpected shipped event: %+v", events[1])
	}
	if events[0].From != "" || !events[0].ChangedStatus() {
		t.Fatalf("creation event must start from empty status: %+v", events[0])
	}
	if events[2].Occurred.IsZero() {
		t.Fatal("expected auto-filled occurred")
	}
}
