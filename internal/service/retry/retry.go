package retry

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Config конфигурация повторов при конфликтах.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig возвращает конфигурацию по умолчанию: 3 попытки, 10ms с удвоением до 200ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Observer получает уведомление о каждом повторе (метрики).
type Observer interface {
	ObserveConflictRetry(operation string)
}

// Policy повторяет операцию целиком, если она проиграла гонку (ErrConflictRetryable).
// Остальные ошибки возвращаются без изменений с первой попытки.
type Policy struct {
	config   Config
	logger   *log.Entry
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option настраивает Policy.
type Option func(*Policy)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver задаёт получателя событий о повторах.
func WithObserver(observer Observer) Option {
	return func(p *Policy) {
		p.observer = observer
	}
}

// NewPolicy создаёт политику повторов.
func NewPolicy(config Config, opts ...Option) *Policy {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = defaults.BackoffFactor
	}

	p := &Policy{
		config: config,
		logger: log.New().WithField("component", "conflict-retry"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do выполняет fn и повторяет её при ErrConflictRetryable, пока не кончатся попытки.
func (p *Policy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := p.config.InitialDelay

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				p.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after conflict retry")
			}
			return nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrConflictRetryable) {
			return err
		}
		if attempt == p.config.MaxAttempts {
			break
		}

		p.logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Debug("concurrent update conflict, retrying")
		if p.observer != nil {
			p.observer.ObserveConflictRetry(operation)
		}

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * p.config.BackoffFactor)
		if delay > p.config.MaxDelay {
			delay = p.config.MaxDelay
		}
	}

	p.logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": p.config.MaxAttempts,
	}).Warn("operation still conflicting after all retry attempts")
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
