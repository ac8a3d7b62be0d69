package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// timelineRepository хранит историю статусов заказа в памяти.
type timelineRepository struct {
	tx *memTx
}

// Append добавляет событие в историю заказа.
func (r timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := r.tx.writable(ctx); err != nil {
		return err
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.tx.store.now()
	}

	s := r.tx.store
	previous := s.timeline[event.OrderID]
	events := make([]domain.TimelineEvent, len(previous), len(previous)+1)
	copy(events, previous)
	events = append(events, event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})

	s.timeline[event.OrderID] = events
	r.tx.record(func() {
		if previous == nil {
			delete(s.timeline, event.OrderID)
			return
		}
		s.timeline[event.OrderID] = previous
	})
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := r.tx.store.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineStore = timelineRepository{}
