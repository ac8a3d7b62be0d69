package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// OrderMetrics содержит метрики ядра заказов, остатков и рейтингов.
// Все методы безопасно вызывать на nil.
type OrderMetrics struct {
	// Операции по типу и результату
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	conflictRetries   *prometheus.CounterVec

	// Движение остатков
	unitsReserved    prometheus.Counter
	unitsRestored    prometheus.Counter
	listingsSoldOut  prometheus.Counter
	ratingRecomputes prometheus.Counter

	// Кэш чтения
	cacheLookups *prometheus.CounterVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Операции в полёте
	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в глобальном registry.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном registry.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_operations_total",
			Help: "Total number of core operations grouped by operation and result kind",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_operation_duration_seconds",
			Help:    "Duration of core operations in seconds, retries included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		conflictRetries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_conflict_retries_total",
			Help: "Total number of retries caused by concurrent update conflicts",
		}, []string{"operation"}),
		unitsReserved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_listing_units_reserved_total",
			Help: "Total number of listing units reserved by orders",
		}),
		unitsRestored: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_listing_units_restored_total",
			Help: "Total number of listing units returned by cancellations and refunds",
		}),
		listingsSoldOut: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_listings_sold_out_total",
			Help: "Total number of listings that reached zero quantity",
		}),
		ratingRecomputes: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_seller_rating_recomputes_total",
			Help: "Total number of seller rating recomputations",
		}),
		cacheLookups: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_cache_lookups_total",
			Help: "Read-through cache lookups grouped by entity and result",
		}, []string{"entity", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_operations_in_flight",
			Help: "Number of core operations currently executing",
		}),
	}
}

// StartOperation отмечает начало операции и возвращает функцию завершения.
func (m *OrderMetrics) StartOperation(operation string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
		result := "ok"
		if err != nil {
			result = string(domain.Kind(err))
		}
		m.operations.WithLabelValues(operation, result).Inc()
	}
}

// ObserveConflictRetry увеличивает счётчик повторов из-за конфликта.
func (m *OrderMetrics) ObserveConflictRetry(operation string) {
	if m == nil {
		return
	}
	m.conflictRetries.WithLabelValues(operation).Inc()
}

// RecordUnitsReserved учитывает зарезервированные единицы.
func (m *OrderMetrics) RecordUnitsReserved(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.unitsReserved.Add(float64(units))
}

// RecordUnitsRestored учитывает возвращённые единицы.
func (m *OrderMetrics) RecordUnitsRestored(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.unitsRestored.Add(float64(units))
}

// RecordListingSoldOut увеличивает счётчик распроданных объявлений.
func (m *OrderMetrics) RecordListingSoldOut() {
	if m == nil {
		return
	}
	m.listingsSoldOut.Inc()
}

// RecordRatingRecompute увеличивает счётчик пересчётов рейтинга.
func (m *OrderMetrics) RecordRatingRecompute() {
	if m == nil {
		return
	}
	m.ratingRecomputes.Inc()
}

// RecordCacheLookup учитывает попадание или промах кэша.
func (m *OrderMetrics) RecordCacheLookup(entity string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(entity, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
