package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-1",
				AggregateType: domain.AggregateOrder,
				AggregateID:   "order-1",
				EventType:     domain.EventOrderCreated,
				Payload:       []byte(`{"status":"PENDING"}`),
			},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected sent id msg-1, got %s", repo.sentIDs[0])
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-2",
				AggregateType: domain.AggregateReview,
				AggregateID:   "review-2",
				EventType:     domain.EventReviewCreated,
				Payload:       []byte(`{"rating":5}`),
			},
		},
	}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithWorkerClock(func() time.Time { return now }),
	)

	res := worker.ProcessOnce(context.Background())
	if res != (BatchResult{Pulled: 1, Failed: 1}) {
		t.Fatalf("unexpected batch result: %+v", res)
	}

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected failed id msg-2, got %s", repo.failedIDs[0])
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	var letter deadLetter
	if err := json.Unmarshal(dlqPublisher.lastMessage().Payload, &letter); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if letter.OutboxID != "msg-2" || letter.AggregateType != domain.AggregateReview || letter.Attempts != 3 {
		t.Fatalf("unexpected dead letter: %+v", letter)
	}
	if string(letter.Payload) != `{"rating":5}` || letter.PublishError == "" || !letter.DLQPublishedAt.Equal(now) {
		t.Fatalf("dead letter must carry the original payload and error: %+v", letter)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-3",
				AggregateType: domain.AggregateOrder,
				AggregateID:   "order-3",
				EventType:     domain.EventOrderStatusChanged,
				Payload:       []byte(`{"status":"PAID"}`),
			},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	if res := worker.ProcessOnce(context.Background()); res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("unexpected batch result: %+v", res)
	}

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	last           domain.OutboxMessage
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.last = msg
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}

	return s.err
}

func (s *stubPublisher) lastMessage() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_ProcessOnce_BreakerOpenPostponesBatch(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-a", AggregateType: domain.AggregateOrder, EventType: domain.EventOrderCreated},
			{ID: "msg-b", AggregateType: domain.AggregateOrder, EventType: domain.EventOrderCreated},
			{ID: "msg-c", AggregateType: domain.AggregateSeller, EventType: domain.EventSellerRatingUpdated},
		},
	}
	broker := &stubPublisher{err: errors.New("broker down")}
	cfg := DefaultBreakerConfig("test-postpone")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	publisher := NewBreakingPublisher(broker, cfg, nil)

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(2))
	res := worker.ProcessOnce(context.Background())
	if res.Failed != 1 || res.Postponed != 2 {
		t.Fatalf("expected msg-a failed and two postponed, got %+v", res)
	}

	if got := broker.calls(); got != 2 {
		t.Fatalf("expected broker to be called 2 times before the breaker opens, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 || repo.failedIDs[0] != "msg-a" {
		t.Fatalf("expected only msg-a to be marked failed, got %v", repo.failedIDs)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected no sent marks, got %d", got)
	}
	if publisher.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker to be open, got %s", publisher.State())
	}
}

func TestBreakingPublisher_PassesThroughWhenClosed(t *testing.T) {
	t.Parallel()

	broker := &stubPublisher{}
	publisher := NewBreakingPublisher(broker, DefaultBreakerConfig("test-pass"), nil)

	for i := 0; i < 3; i++ {
		if err := publisher.Publish(domain.OutboxMessage{ID: "msg"}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
	}
	if got := broker.calls(); got != 3 {
		t.Fatalf("expected 3 broker calls, got %d", got)
	}
	if publisher.State() != gobreaker.StateClosed {
		t.Fatalf("expected breaker to stay closed, got %s", publisher.State())
	}
}

func TestBreakingPublisher_OpenReturnsUnavailable(t *testing.T) {
	t.Parallel()

	broker := &stubPublisher{err: errors.New("broker down")}
	cfg := DefaultBreakerConfig("test-open")
	cfg.ConsecutiveFailures = 1
	cfg.Timeout = time.Hour
	publisher := NewBreakingPublisher(broker, cfg, nil)

	if err := publisher.Publish(domain.OutboxMessage{ID: "msg"}); err == nil || errors.Is(err, ErrPublisherUnavailable) {
		t.Fatalf("first failure must surface the broker error, got %v", err)
	}
	err := publisher.Publish(domain.OutboxMessage{ID: "msg"})
	if !errors.Is(err, ErrPublisherUnavailable) {
		t.Fatalf("expected ErrPublisherUnavailable, got %v", err)
	}
	if got := broker.calls(); got != 1 {
		t.Fatalf("open breaker must not reach the broker, got %d calls", got)
	}
}

func TestWorker_ProcessOnce_DrainsMemoryStore(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, eventType := range []string{domain.EventOrderCreated, domain.EventPaymentRecorded} {
			if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
				AggregateType: domain.AggregateOrder,
				AggregateID:   "order-1",
				EventType:     eventType,
				Payload:       []byte(`{}`),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	publisher := &stubPublisher{}
	NewWorker(store, publisher, WithRetryBaseDelay(0)).ProcessOnce(context.Background())

	if got := publisher.calls(); got != 2 {
		t.Fatalf("expected 2 publish calls, got %d", got)
	}
	if got := len(store.AllPending()); got != 0 {
		t.Fatalf("expected outbox to be drained, got %d pending", got)
	}
}

func TestWorker_RetryBackoffIsCapped(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(100*time.Millisecond))

	cases := map[int]time.Duration{
		1:  100 * time.Millisecond,
		2:  200 * time.Millisecond,
		4:  800 * time.Millisecond,
		6:  maxRetryDelay,
		40: maxRetryDelay,
	}
	for attempt, want := range cases {
		if got := worker.retryBackoff(attempt); got != want {
			t.Fatalf("attempt %d: got %s want %s", attempt, got, want)
		}
	}

	noDelay := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(0))
	if got := noDelay.retryBackoff(3); got != 0 {
		t.Fatalf("expected zero delay, got %s", got)
	}
}
