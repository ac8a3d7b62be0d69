package review

import (
	"context"
	"encoding/json"
	"errors"
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

const (
	opCreateReview    = "create_review"
	opUpdateReview    = "update_review"
	opDeleteReview    = "delete_review"
	opRecomputeRating = "recompute_rating"
)

// Invalidator удаляет устаревшие записи кэша чтения после коммита.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// CreateReviewRequest: отзыв покупателя на доставленный заказ.
type CreateReviewRequest struct {
	OrderID string `validate:"required"`
	BuyerID string `validate:"required"`
	Rating  int
	Comment string `validate:"max=2000"`
}

// UpdateReviewRequest: новая оценка и комментарий.
type UpdateReviewRequest struct {
	Rating  int
	Comment string `validate:"max=2000"`
}

// Service управляет отзывами и синхронно пересчитывает рейтинг продавца в той же единице работы.
type Service struct {
	uow         domain.UnitOfWork
	aggregator  *Aggregator
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

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов отзывов.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService создаёт сервис отзывов.
func NewService(uow domain.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		uow:        uow,
		aggregator: NewAggregator(),
		logger:     log.New().WithField("component", "review-service"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry == nil {
		s.retry = retry.NewPolicy(retry.DefaultConfig(), retry.WithLogger(s.logger), retry.WithObserver(s.metrics))
	}
	return s
}

type effects struct {
	outbox     int
	recomputed int
	keys       []string
}

func (s *Service) execute(ctx context.Context, op, entity, id string, body func(ctx context.Context, tx domain.Tx, eff *effects) error) (err error) {
	ctx, span := tracing.Start(ctx, "review."+op, entity, id)
	done := s.metrics.StartOperation(op)
	defer func() {
		done(err)
		tracing.End(span, err)
	}()

	var eff effects
	err = s.retry.Do(ctx, op, func(ctx context.Context) error {
		eff = effects{}
		return s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			return body(ctx, tx, &eff)
		})
	})
	if err != nil {
		entry := s.logger.WithError(err).WithFields(log.Fields{
			"operation": op,
			"kind":      domain.Kind(err),
		}).WithField(entity+"_id", id)
		if domain.Kind(err) == domain.KindInternal {
			entry.Error("review operation failed")
		} else {
			entry.Info("review operation rejected")
		}
		return domain.WrapOp(op, entity, id, err)
	}

	for i := 0; i < eff.outbox; i++ {
		s.metrics.RecordOutboxEvent()
	}
	for i := 0; i < eff.recomputed; i++ {
		s.metrics.RecordRatingRecompute()
	}
	if s.invalidator != nil && len(eff.keys) > 0 {
		if err := s.invalidator.Delete(ctx, eff.keys...); err != nil {
			s.logger.WithError(err).WithField("operation", op).Warn("cache invalidation failed")
		}
	}
	return nil
}

func validateRating(rating int) error {
	if !domain.ValidRating(rating) {
		return fmt.Errorf("rating %d: %w", rating, domain.ErrRatingOutOfRange)
	}
	return nil
}

// CreateReview сохраняет отзыв покупателя по доставленному заказу и пересчитывает рейтинг продавца.
// Продавец и покупатель берутся из заказа; оставить отзыв может только покупатель заказа.
func (s *Service) CreateReview(ctx context.Context, req CreateReviewRequest) (domain.Review, error) {
	if err := domain.ValidateStruct(req); err != nil {
		return domain.Review{}, domain.WrapOp(opCreateReview, "order", req.OrderID, err)
	}
	if err := validateRating(req.Rating); err != nil {
		return domain.Review{}, domain.WrapOp(opCreateReview, "order", req.OrderID, err)
	}

	var created domain.Review
	err := s.execute(ctx, opCreateReview, "order", req.OrderID, func(ctx context.Context, tx domain.Tx, eff *effects) error {
		order, err := tx.Orders().Get(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != req.BuyerID {
			return fmt.Errorf("buyer %s is not the buyer of order %s: %w", req.BuyerID, order.ID, domain.ErrForbiddenReviewer)
		}
		if order.Status != domain.OrderStatusDelivered {
			return fmt.Errorf("review on %s order: %w", order.Status, domain.ErrInvalidTransition)
		}
		if _, found, err := tx.Reviews().FindByOrderID(ctx, order.ID); err != nil {
			return fmt.Errorf("find review by order: %w", err)
		} else if found {
			return domain.ErrDuplicateReview
		}

		created, err = tx.Reviews().Create(ctx, domain.Review{
			ID:       s.newID(),
			SellerID: order.SellerID,
			BuyerID:  order.BuyerID,
			OrderID:  order.ID,
			Rating:   req.Rating,
			Comment:  req.Comment,
			Verified: true,
		})
		if err != nil {
			return fmt.Errorf("create review: %w", err)
		}
		eff.keys = append(eff.keys, cache.ReviewKey(created.ID), cache.ReviewByOrderKey(created.OrderID))

		if err := s.emitReview(ctx, tx, eff, created, domain.EventReviewCreated); err != nil {
			return err
		}
		return s.recompute(ctx, tx, eff, created.SellerID)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return created, nil
}

// UpdateReview меняет оценку и комментарий отзыва и пересчитывает рейтинг продавца.
func (s *Service) UpdateReview(ctx context.Context, reviewID string, req UpdateReviewRequest) (domain.Review, error) {
	if err := domain.ValidateStruct(req); err != nil {
		return domain.Review{}, domain.WrapOp(opUpdateReview, "review", reviewID, err)
	}
	if err := validateRating(req.Rating); err != nil {
		return domain.Review{}, domain.WrapOp(opUpdateReview, "review", reviewID, err)
	}

	var updated domain.Review
	err := s.execute(ctx, opUpdateReview, "review", reviewID, func(ctx context.Context, tx domain.Tx, eff *effects) error {
		current, err := tx.Reviews().Get(ctx, reviewID)
		if err != nil {
			return err
		}
		current.Rating = req.Rating
		current.Comment = req.Comment

		updated, err = tx.Reviews().Update(ctx, current)
		if err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		eff.keys = append(eff.keys, cache.ReviewKey(updated.ID), cache.ReviewByOrderKey(updated.OrderID))

		if err := s.emitReview(ctx, tx, eff, updated, domain.EventReviewUpdated); err != nil {
			return err
		}
		return s.recompute(ctx, tx, eff, updated.SellerID)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return updated, nil
}

// DeleteReview удаляет отзыв и пересчитывает рейтинг продавца.
// Отсутствующий отзыв не ошибка: возвращается false.
func (s *Service) DeleteReview(ctx context.Context, reviewID string) (bool, error) {
	deleted := false
	err := s.execute(ctx, opDeleteReview, "review", reviewID, func(ctx context.Context, tx domain.Tx, eff *effects) error {
		deleted = false
		current, err := tx.Reviews().Get(ctx, reviewID)
		if errors.Is(err, domain.ErrReviewNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Reviews().Delete(ctx, reviewID); err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		deleted = true
		eff.keys = append(eff.keys, cache.ReviewKey(current.ID), cache.ReviewByOrderKey(current.OrderID))

		if err := s.emitReview(ctx, tx, eff, current, domain.EventReviewDeleted); err != nil {
			return err
		}
		return s.recompute(ctx, tx, eff, current.SellerID)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// RecomputeSellerRating пересчитывает рейтинг продавца отдельной единицей работы.
func (s *Service) RecomputeSellerRating(ctx context.Context, sellerID string) (domain.Seller, error) {
	var seller domain.Seller
	err := s.execute(ctx, opRecomputeRating, "seller", sellerID, func(ctx context.Context, tx domain.Tx, eff *effects) error {
		var err error
		seller, err = s.aggregator.Recompute(ctx, tx, sellerID)
		if err != nil {
			return err
		}
		eff.recomputed++
		eff.keys = append(eff.keys, cache.SellerKey(sellerID))
		return s.emitSeller(ctx, tx, eff, seller)
	})
	if err != nil {
		return domain.Seller{}, err
	}
	return seller, nil
}

// recompute пересчитывает рейтинг после изменения отзыва. Отсутствующий продавец пропускается с предупреждением.
func (s *Service) recompute(ctx context.Context, tx domain.Tx, eff *effects, sellerID string) error {
	seller, err := s.aggregator.Recompute(ctx, tx, sellerID)
	if errors.Is(err, domain.ErrSellerNotFound) {
		s.logger.WithField("seller_id", sellerID).Warn("seller missing, rating not recomputed")
		return nil
	}
	if err != nil {
		return err
	}
	eff.recomputed++
	eff.keys = append(eff.keys, cache.SellerKey(sellerID))
	return s.emitSeller(ctx, tx, eff, seller)
}

func (s *Service) emitReview(ctx context.Context, tx domain.Tx, eff *effects, r domain.Review, eventType string) error {
	return s.enqueue(ctx, tx, eff, domain.AggregateReview, r.ID, eventType, newReviewEvent(r, eventType, s.now()))
}

func (s *Service) emitSeller(ctx context.Context, tx domain.Tx, eff *effects, seller domain.Seller) error {
	return s.enqueue(ctx, tx, eff, domain.AggregateSeller, seller.ID, domain.EventSellerRatingUpdated, newSellerRatingEvent(seller, s.now()))
}

func (s *Service) enqueue(ctx context.Context, tx domain.Tx, eff *effects, aggregateType, aggregateID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	eff.outbox++
	return nil
}
