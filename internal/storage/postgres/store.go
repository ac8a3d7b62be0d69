package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// Коды ошибок PostgreSQL, которые разбирает хранилище.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// ErrReadOnlyTx возвращается при попытке записи в единице работы только для чтения.
var ErrReadOnlyTx = errors.New("write in read-only unit of work")

// Store: PostgreSQL-хранилище маркетплейса. Единица работы соответствует одной SQL-транзакции.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Строки, которые меняются,
// читаются через SELECT ... FOR UPDATE, поэтому конкурирующие резервирования
// выстраиваются в очередь на уровне строки объявления.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, false, fn)
}

// WithinReadTx выполняет fn в транзакции только для чтения.
func (s *Store) WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true}, true, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, readOnly bool, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", translate(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{tx: sqlTx, now: s.now, readOnly: readOnly}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

// pgTx раздаёт репозитории, привязанные к одной SQL-транзакции.
type pgTx struct {
	tx       *sql.Tx
	now      func() time.Time
	readOnly bool
}

func (t *pgTx) Listings() domain.ListingStore { return listingRepository{tx: t} }
func (t *pgTx) Orders() domain.OrderStore { return orderRepository{tx: t} }
func (t *pgTx) Reviews() domain.ReviewStore { return reviewRepository{tx: t} }
func (t *pgTx) Sellers() domain.SellerStore { return sellerRepository{tx: t} }
func (t *pgTx) Outbox() domain.OutboxWriter { return outboxWriter{tx: t} }
func (t *pgTx) Timeline() domain.TimelineStore { return timelineRepository{tx: t} }

// writable запрещает запись в единице работы только для чтения.
func (t *pgTx) writable(ctx context.Context) error {
	if t.readOnly {
		return ErrReadOnlyTx
	}
	return ctx.Err()
}

// rowScanner объединяет *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// translate приводит ошибки PostgreSQL к доменным: сериализационные сбои и deadlock
// становятся ErrConflictRetryable, остальное возвращается как есть.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", domain.ErrConflictRetryable, pgErr.Message)
		}
	}
	return err
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ domain.UnitOfWork = (*Store)(nil)
