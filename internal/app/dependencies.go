package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/order"
	"github.com/vladislavdragonenkov/marketplace/internal/service/query"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
	"github.com/vladislavdragonenkov/marketplace/internal/service/review"
)

// Dependencies содержит сервисы ядра, собранные над одним хранилищем.
type Dependencies struct {
	Orders  *order.Service
	Reviews *review.Service
	Queries *query.Service
	Metrics *metrics.OrderMetrics
	Logger  *log.Entry
}

// NewDependencies собирает командные и query-сервисы. Командные сервисы инвалидируют тот же кэш,
// из которого читает query-сервис.
func NewDependencies(uow domain.UnitOfWork, readCache cache.Cache, m *metrics.OrderMetrics, retryAttempts int, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if readCache == nil {
		readCache = cache.Noop{}
	}
	if m == nil {
		m = metrics.NewOrderMetrics()
	}

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:   retryAttempts,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2,
	}, retry.WithLogger(logger.WithField("component", "retry")), retry.WithObserver(m))

	return &Dependencies{
		Orders: order.NewService(uow,
			order.WithLogger(logger.WithField("component", "orders")),
			order.WithMetrics(m),
			order.WithRetryPolicy(policy),
			order.WithInvalidator(readCache),
		),
		Reviews: review.NewService(uow,
			review.WithLogger(logger.WithField("component", "reviews")),
			review.WithMetrics(m),
			review.WithRetryPolicy(policy),
			review.WithInvalidator(readCache),
		),
		Queries: query.NewService(uow,
			query.WithCache(readCache),
			query.WithLogger(logger.WithField("component", "queries")),
			query.WithMetrics(m),
		),
		Metrics: m,
		Logger:  logger,
	}
}
