package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type timelineRepository struct {
	tx *pgTx
}

func (r timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := r.tx.writable(ctx); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.tx.now()
	}

	if _, err := r.tx.tx.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, from_status, status, reason, occurred)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.OrderID, event.Type, string(event.From), string(event.Status), event.Reason, event.Occurred.UTC()); err != nil {
		return fmt.Errorf("append timeline event: %w", translate(err))
	}
	return nil
}

// List возвращает события заказа; при равном времени порядок задаёт порядок записи.
func (r timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	rows, err := r.tx.tx.QueryContext(ctx, `
		SELECT order_id, type, from_status, status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", translate(err))
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event        domain.TimelineEvent
			from, status string
		)
		if err := rows.Scan(&event.OrderID, &event.Type, &from, &status, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		event.From = domain.OrderStatus(from)
		event.Status = domain.OrderStatus(status)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return events, nil
}

var _ domain.TimelineStore = timelineRepository{}
