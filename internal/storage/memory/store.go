package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ErrReadOnlyTx возвращается при попытке записи в единице работы только для чтения.
var ErrReadOnlyTx = errors.New("write in read-only unit of work")

// Store: in-memory хранилище маркетплейса для локальной разработки и тестов.
// Пишущая единица работы держит эксклюзивную блокировку до конца и откатывается по журналу отмены.
type Store struct {
	mu sync.RWMutex

	listings      map[string]domain.Listing
	orders        map[string]domain.Order
	reviews       map[string]domain.Review
	reviewByOrder map[string]string
	sellers       map[string]domain.Seller
	outbox        map[string]*outboxRecord
	outboxOrder   []string
	timeline      map[string][]domain.TimelineEvent

	now func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		listings:      make(map[string]domain.Listing),
		orders:        make(map[string]domain.Order),
		reviews:       make(map[string]domain.Review),
		reviewByOrder: make(map[string]string),
		sellers:       make(map[string]domain.Seller),
		outbox:        make(map[string]*outboxRecord),
		timeline:      make(map[string][]domain.TimelineEvent),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx выполняет fn под эксклюзивной блокировкой. При ошибке изменения откатываются.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &memTx{store: s}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if err != nil {
			t.rollback()
		}
	}()

	return fn(ctx, t)
}

// WithinReadTx выполняет fn под разделяемой блокировкой; записи запрещены.
func (s *Store) WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, &memTx{store: s, readOnly: true})
}

// Ping нужен для health-check и всегда успешен.
func (s *Store) Ping(context.Context) error {
	return nil
}

// memTx: единица работы поверх Store. Не потокобезопасна и живёт только внутри WithinTx.
type memTx struct {
	store    *Store
	readOnly bool
	undo     []func()
}

func (t *memTx) Listings() domain.ListingStore { return listingRepository{tx: t} }
func (t *memTx) Orders() domain.OrderStore { return orderRepository{tx: t} }
func (t *memTx) Reviews() domain.ReviewStore { return reviewRepository{tx: t} }
func (t *memTx) Sellers() domain.SellerStore { return sellerRepository{tx: t} }
func (t *memTx) Outbox() domain.OutboxWriter { return outboxWriter{tx: t} }
func (t *memTx) Timeline() domain.TimelineStore { return timelineRepository{tx: t} }

// writable проверяет режим и контекст перед записью.
func (t *memTx) writable(ctx context.Context) error {
	if t.readOnly {
		return ErrReadOnlyTx
	}
	return ctx.Err()
}

// record добавляет шаг отмены в журнал.
func (t *memTx) record(undo func()) {
	t.undo = append(t.undo, undo)
}

// rollback применяет журнал отмены в обратном порядке.
func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

var _ domain.UnitOfWork = (*Store)(nil)
