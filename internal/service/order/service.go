package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
	"github.com/vladislavdragonenkov/marketplace/internal/tracing"
)

// Имена операций для логов, метрик и span'ов.
const (
	opReserve        = "reserve"
	opCancel         = "cancel"
	opRefund         = "refund"
	opRecordPayment  = "record_payment"
	opRecordShipment = "record_shipment"
	opMarkDelivered  = "mark_delivered"
)

// Invalidator удаляет устаревшие записи кэша чтения после коммита.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// Service: движок резервирования остатков и машина состояний заказа.
// Каждая публичная операция выполняется одной единицей работы и повторяется целиком при конфликте.
type Service struct {
	uow         domain.UnitOfWork
	retry       *retry.Policy
	invalidator Invalidator
	logger      *log.Entry
	metrics     *metrics.OrderMetrics
	now         func() time.Time
	newID       func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryPolicy задаёт политику повторов при конфликтах.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.retry = p
		}
	}
}

// WithInvalidator подключает инвалидацию кэша чтения.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService создаёт сервис заказов поверх единицы работы.
func NewService(uow domain.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		uow:    uow,
		logger: log.New().WithField("component", "order-service"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry == nil {
		s.retry = retry.NewPolicy(retry.DefaultConfig(), retry.WithLogger(s.logger), retry.WithObserver(s.metrics))
	}
	return s
}

// effects собирает побочные эффекты одной успешной попытки; метрики и кэш обновляются только после коммита.
type effects struct {
	reserved   int
	restored   int
	soldOut    int
	outbox     int
	timeline   int
	listingIDs []string
}

// execute оборачивает тело операции в span, метрики, повторы и единицу работы.
func (s *Service) execute(ctx context.Context, op, orderID string, body func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error)) (result domain.Order, err error) {
	ctx, span := tracing.Start(ctx, "order."+op, "order", orderID)
	done := s.metrics.StartOperation(op)
	defer func() {
		done(err)
		tracing.End(span, err)
	}()

	var (
		out domain.Order
		eff effects
	)
	err = s.retry.Do(ctx, op, func(ctx context.Context) error {
		eff = effects{}
		return s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			var txErr error
			out, txErr = body(ctx, tx, &eff)
			return txErr
		})
	})
	if err != nil {
		s.logFailure(op, orderID, err)
		return domain.Order{}, domain.WrapOp(op, "order", orderID, err)
	}

	s.metrics.RecordUnitsReserved(eff.reserved)
	s.metrics.RecordUnitsRestored(eff.restored)
	for i := 0; i < eff.soldOut; i++ {
		s.metrics.RecordListingSoldOut()
	}
	for i := 0; i < eff.outbox; i++ {
		s.metrics.RecordOutboxEvent()
	}
	for i := 0; i < eff.timeline; i++ {
		s.metrics.RecordTimelineEvent()
	}
	s.invalidate(ctx, out, eff.listingIDs)

	return out, nil
}

func (s *Service) logFailure(op, orderID string, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": op,
		"order_id":  orderID,
		"kind":      domain.Kind(err),
	})
	if domain.Kind(err) == domain.KindInternal {
		entry.Error("order operation failed")
		return
	}
	entry.Info("order operation rejected")
}

// invalidate сбрасывает кэш заказа и затронутых объявлений. Ошибка кэша не откатывает операцию.
func (s *Service) invalidate(ctx context.Context, order domain.Order, listingIDs []string) {
	if s.invalidator == nil {
		return
	}
	keys := make([]string, 0, len(listingIDs)+1)
	keys = append(keys, cache.OrderKey(order.ID))
	for _, id := range listingIDs {
		keys = append(keys, cache.ListingKey(id))
	}
	if err := s.invalidator.Delete(ctx, keys...); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("cache invalidation failed")
	}
}

// emit добавляет событие в outbox и запись в timeline в рамках текущей единицы работы.
func (s *Service) emit(ctx context.Context, tx domain.Tx, eff *effects, order domain.Order, eventType string, previous domain.OrderStatus, reason string) error {
	event := newOrderEvent(order, eventType, previous, reason, s.now())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	eff.outbox++

	entry := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		From:     previous,
		Status:   order.Status,
		Reason:   reason,
		Occurred: event.OccurredAt,
	}
	if err := tx.Timeline().Append(ctx, entry); err != nil {
		return fmt.Errorf("append %s timeline event: %w", eventType, err)
	}
	eff.timeline++
	return nil
}
