// Package query: сторона чтения: заказы, объявления, отзывы, продавцы и история заказа
// с явным read-through кэшем.
package query

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/tracing"
)

const (
	// DefaultLimit: размер страницы списков по умолчанию.
	DefaultLimit = 50
	// MaxLimit: верхняя граница размера страницы.
	MaxLimit = 200
)

// TTLs задаёт время жизни записей кэша по типам сущностей.
type TTLs struct {
	Default time.Duration
	Listing time.Duration
	Seller  time.Duration
}

// DefaultTTLs возвращает TTL по умолчанию.
func DefaultTTLs() TTLs {
	return TTLs{
		Default: cache.DefaultTTL,
		Listing: cache.ListingTTL,
		Seller:  cache.SellerTTL,
	}
}

// Service читает данные в единицах работы только для чтения и кэширует одиночные сущности.
type Service struct {
	uow     domain.UnitOfWork
	cache   cache.Cache
	ttl     TTLs
	logger  *log.Entry
	metrics *metrics.OrderMetrics
}

// Option настраивает Service.
type Option func(*Service)

// WithCache подключает кэш. По умолчанию кэш выключен.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithTTLs переопределяет TTL; нулевые поля остаются по умолчанию.
func WithTTLs(ttl TTLs) Option {
	return func(s *Service) {
		if ttl.Default > 0 {
			s.ttl.Default = ttl.Default
		}
		if ttl.Listing > 0 {
			s.ttl.Listing = ttl.Listing
		}
		if ttl.Seller > 0 {
			s.ttl.Seller = ttl.Seller
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики попаданий в кэш.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService создаёт query-сервис.
func NewService(uow domain.UnitOfWork, opts ...Option) *Service {
	s := &Service{
		uow:    uow,
		cache:  cache.Noop{},
		ttl:    DefaultTTLs(),
		logger: log.New().WithField("component", "query-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// readThrough отдаёт значение из кэша, а при промахе читает хранилище и кладёт результат в кэш.
// Недоступный кэш не ломает чтение.
func readThrough[T any](ctx context.Context, s *Service, entity, id, key string, ttl time.Duration, load func(ctx context.Context, tx domain.Tx) (T, error)) (result T, err error) {
	ctx, span := tracing.Start(ctx, "query.get_"+entity, entity, id)
	defer func() { tracing.End(span, err) }()

	var cached T
	found, cacheErr := s.cache.Get(ctx, key, &cached)
	if cacheErr != nil {
		s.logger.WithError(cacheErr).WithField("key", key).Warn("cache read failed")
	}
	if found {
		s.metrics.RecordCacheLookup(entity, true)
		return cached, nil
	}
	s.metrics.RecordCacheLookup(entity, false)

	err = s.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var loadErr error
		result, loadErr = load(ctx, tx)
		return loadErr
	})
	if err != nil {
		var zero T
		return zero, domain.WrapOp("get", entity, id, err)
	}

	if err := s.cache.Set(ctx, key, result, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return result, nil
}

func (s *Service) read(ctx context.Context, op, entity, id string, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := s.uow.WithinReadTx(ctx, fn); err != nil {
		return domain.WrapOp(op, entity, id, err)
	}
	return nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func normalizeFilter(filter domain.OrderFilter) (domain.OrderFilter, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, fmt.Errorf("%w: unknown order status %q", domain.ErrInvalidInput, filter.Status)
	}
	filter.Limit = normalizeLimit(filter.Limit)
	return filter, nil
}

// GetOrder возвращает заказ.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return readThrough(ctx, s, "order", id, cache.OrderKey(id), s.ttl.Default,
		func(ctx context.Context, tx domain.Tx) (domain.Order, error) {
			return tx.Orders().Get(ctx, id)
		})
}

// ListOrdersByBuyer возвращает заказы покупателя, новые первыми.
func (s *Service) ListOrdersByBuyer(ctx context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, domain.WrapOp("list_orders", "buyer", buyerID, err)
	}
	var out []domain.Order
	err = s.read(ctx, "list_orders", "buyer", buyerID, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Orders().ListByBuyer(ctx, buyerID, filter)
		return err
	})
	return out, err
}

// ListOrdersBySeller возвращает заказы продавца, новые первыми.
func (s *Service) ListOrdersBySeller(ctx context.Context, sellerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, domain.WrapOp("list_orders", "seller", sellerID, err)
	}
	var out []domain.Order
	err = s.read(ctx, "list_orders", "seller", sellerID, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Orders().ListBySeller(ctx, sellerID, filter)
		return err
	})
	return out, err
}

// GetListing возвращает объявление.
func (s *Service) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	return readThrough(ctx, s, "listing", id, cache.ListingKey(id), s.ttl.Listing,
		func(ctx context.Context, tx domain.Tx) (domain.Listing, error) {
			return tx.Listings().Get(ctx, id)
		})
}

// ListListingsBySeller возвращает объявления продавца.
func (s *Service) ListListingsBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Listing, error) {
	var out []domain.Listing
	err := s.read(ctx, "list_listings", "seller", sellerID, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Listings().ListBySeller(ctx, sellerID, normalizeLimit(limit))
		return err
	})
	return out, err
}

// GetReview возвращает отзыв.
func (s *Service) GetReview(ctx context.Context, id string) (domain.Review, error) {
	return readThrough(ctx, s, "review", id, cache.ReviewKey(id), s.ttl.Default,
		func(ctx context.Context, tx domain.Tx) (domain.Review, error) {
			return tx.Reviews().Get(ctx, id)
		})
}

// GetReviewByOrder возвращает отзыв по заказу или ErrReviewNotFound.
func (s *Service) GetReviewByOrder(ctx context.Context, orderID string) (domain.Review, error) {
	return readThrough(ctx, s, "review", orderID, cache.ReviewByOrderKey(orderID), s.ttl.Default,
		func(ctx context.Context, tx domain.Tx) (domain.Review, error) {
			r, found, err := tx.Reviews().FindByOrderID(ctx, orderID)
			if err != nil {
				return domain.Review{}, err
			}
			if !found {
				return domain.Review{}, domain.ErrReviewNotFound
			}
			return r, nil
		})
}

// ListReviewsBySeller возвращает отзывы продавца, новые первыми.
func (s *Service) ListReviewsBySeller(ctx context.Context, sellerID string, limit int) ([]domain.Review, error) {
	var out []domain.Review
	err := s.read(ctx, "list_reviews", "seller", sellerID, func(ctx context.Context, tx domain.Tx) error {
		var err error
		out, err = tx.Reviews().ListBySeller(ctx, sellerID, normalizeLimit(limit))
		return err
	})
	return out, err
}

// GetSeller возвращает продавца с рейтингом.
func (s *Service) GetSeller(ctx context.Context, id string) (domain.Seller, error) {
	return readThrough(ctx, s, "seller", id, cache.SellerKey(id), s.ttl.Seller,
		func(ctx context.Context, tx domain.Tx) (domain.Seller, error) {
			return tx.Sellers().Get(ctx, id)
		})
}

// ListTimeline возвращает историю статусов заказа в хронологическом порядке.
func (s *Service) ListTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var out []domain.TimelineEvent
	err := s.read(ctx, "list_timeline", "order", orderID, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Orders().Get(ctx, orderID); err != nil {
			return err
		}
		var err error
		out, err = tx.Timeline().List(ctx, orderID)
		return err
	})
	return out, err
}
