package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ErrPublisherUnavailable: circuit breaker разомкнут, публикация не выполнялась.
var ErrPublisherUnavailable = errors.New("outbox publisher unavailable")

var outboxBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "marketplace_outbox_breaker_state",
	Help: "Current state of the outbox publisher circuit breaker (0=closed, 1=half-open, 2=open).",
}, []string{"name"})

// BreakerConfig задаёт параметры circuit breaker вокруг publisher.
type BreakerConfig struct {
	Name string
	// MaxRequests: число пробных запросов в half-open.
	MaxRequests uint32
	// Interval: период сброса счётчиков в closed, при 0 не сбрасываются.
	Interval time.Duration
	// Timeout: сколько breaker остаётся open до перехода в half-open.
	Timeout time.Duration
	// ConsecutiveFailures: число подряд неудачных публикаций, после которого breaker размыкается.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig возвращает настройки по умолчанию.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakingPublisher защищает брокер от шквала повторов: после серии ошибок публикации
// отвечает ErrPublisherUnavailable, не обращаясь к брокеру.
type BreakingPublisher struct {
	next    domain.OutboxPublisher
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakingPublisher оборачивает publisher в circuit breaker.
func NewBreakingPublisher(next domain.OutboxPublisher, cfg BreakerConfig, logger *log.Entry) *BreakingPublisher {
	if logger == nil {
		logger = log.New().WithField("component", "outbox-breaker")
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig(cfg.Name).ConsecutiveFailures
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("outbox breaker state changed")
			outboxBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
	outboxBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &BreakingPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Publish передаёт событие дальше, если breaker не разомкнут.
func (p *BreakingPublisher) Publish(event domain.OutboxMessage) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.Publish(event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrPublisherUnavailable, err)
	}
	return err
}

// State возвращает текущее состояние breaker.
func (p *BreakingPublisher) State() gobreaker.State {
	return p.breaker.State()
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var _ domain.OutboxPublisher = (*BreakingPublisher)(nil)
