package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxWriter добавляет события в outbox в рамках единицы работы.
type outboxWriter struct {
	tx *memTx
}

// Enqueue сохраняет событие со статусом `pending`. При откате единицы работы событие исчезает.
func (w outboxWriter) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := w.tx.writable(ctx); err != nil {
		return domain.OutboxMessage{}, err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s := w.tx.store
	now := s.now()
	s.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	s.outboxOrder = append(s.outboxOrder, msg.ID)
	w.tx.record(func() {
		delete(s.outbox, msg.ID)
		s.outboxOrder = s.outboxOrder[:len(s.outboxOrder)-1]
	})
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке добавления.
func (s *Store) PullPending(limit int) ([]domain.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		rec := s.outbox[id]
		if rec == nil || rec.status != outboxStatusPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самого старого pending-сообщения.
func (s *Store) Stats() (domain.OutboxStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range s.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (s *Store) MarkSent(id string) error {
	return s.markOutbox(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (s *Store) MarkFailed(id string) error {
	return s.markOutbox(id, outboxStatusFailed)
}

func (s *Store) markOutbox(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = s.now()
	return nil
}

// PurgeSent удаляет до limit отправленных сообщений, обновлённых раньше before.
func (s *Store) PurgeSent(before time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return 0, nil
	}

	deleted := 0
	kept := s.outboxOrder[:0]
	for _, id := range s.outboxOrder {
		rec := s.outbox[id]
		if rec != nil && deleted < limit && rec.status == outboxStatusSent && rec.updatedAt.Before(before) {
			delete(s.outbox, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.outboxOrder = kept
	return deleted, nil
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (s *Store) AllPending() []domain.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, len(s.outbox))
	for _, id := range s.outboxOrder {
		if rec := s.outbox[id]; rec != nil && rec.status == outboxStatusPending {
			result = append(result, rec.msg)
		}
	}
	return result
}

var (
	_ domain.OutboxRepository = (*Store)(nil)
	_ domain.OutboxPurger     = (*Store)(nil)
)
