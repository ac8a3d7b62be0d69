package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 72 * time.Hour
)

var (
	outboxCleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_outbox_cleanup_runs_total",
		Help: "Total number of outbox retention cleanup runs grouped by result.",
	}, []string{"result"})
	outboxCleanupPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_outbox_cleanup_purged_total",
		Help: "Total number of purged sent outbox records.",
	})
	outboxCleanupLastPurged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_outbox_cleanup_last_purged",
		Help: "Number of purged records during the last cleanup run.",
	})
)

// CleanupOptions задаёт параметры воркера очистки outbox.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Retention time.Duration
	Clock     func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithCleanupLogger задаёт logger для воркера очистки.
func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithCleanupInterval задаёт интервал между циклами очистки.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithCleanupBatchSize задаёт размер одного удаления.
func WithCleanupBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetention задаёт, сколько хранить отправленные сообщения.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// WithCleanupClock подменяет источник времени.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Clock = now
	}
}

// CleanupWorker периодически удаляет отправленные outbox-сообщения старше retention.
// Pending и failed записи не трогает.
type CleanupWorker struct {
	repo      domain.OutboxPurger
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	retention time.Duration
	now       func() time.Time
}

// NewCleanupWorker создаёт воркер очистки outbox.
func NewCleanupWorker(repo domain.OutboxPurger, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleanup-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		retention: opts.Retention,
		now:       opts.Clock,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	purged, err := w.Purge(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outboxCleanupRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	outboxCleanupRuns.WithLabelValues("ok").Inc()
	outboxCleanupLastPurged.Set(float64(purged))
	if purged > 0 {
		w.logger.WithField("purged", purged).Info("outbox cleanup completed")
	}
}

// Purge удаляет все отправленные сообщения старше retention порциями batchSize.
func (w *CleanupWorker) Purge(ctx context.Context) (int, error) {
	before := w.now().Add(-w.retention)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		purged, err := w.repo.PurgeSent(before, w.batchSize)
		if err != nil {
			return total, err
		}

		total += purged
		if purged > 0 {
			outboxCleanupPurged.Add(float64(purged))
		}
		if purged < w.batchSize {
			return total, nil
		}
	}
}
