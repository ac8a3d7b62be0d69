package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir = "sql/migrations"

	// migrationLockKey сериализует миграции между репликами сервиса.
	migrationLockKey = int64(0x6d6b7470)

	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS marketplace_schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	migrationQueryTimeout = 5 * time.Second
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

	errStoreNotInitialized = errors.New("postgres store is not initialized")
)

type direction string

const (
	directionUp   direction = "up"
	directionDown direction = "down"
)

// schemaMigration объединяет up и down скрипты одной версии схемы.
type schemaMigration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m schemaMigration) label() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// migrationStep описывает одно действие плана.
type migrationStep struct {
	migration schemaMigration
	direction direction
}

// MigrateUp применяет до steps ещё не применённых версий схемы; steps <= 0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, directionUp, steps)
}

// MigrateDown откатывает steps последних версий; steps <= 0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, directionDown, steps)
}

// MigrationStatus возвращает последнюю применённую версию и число применённых версий.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errStoreNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, migrationQueryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, migrationTableDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		latest int64
		count  int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*) FROM marketplace_schema_migrations
	`).Scan(&latest, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return latest, count, nil
}

func (s *Store) migrate(ctx context.Context, dir direction, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	available, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
			return fmt.Errorf("ensure migration table: %w", err)
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		plan, err := planMigrations(dir, available, applied, steps)
		if err != nil {
			return err
		}
		for _, step := range plan {
			if err := runStep(ctx, conn, step); err != nil {
				return err
			}
		}
		return nil
	})
}

// withMigrationLock держит advisory lock на выделенном соединении, пока выполняется fn.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationQueryTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	return fn(conn)
}

// planMigrations выбирает шаги для направления dir. applied содержит применённые версии в любом порядке.
func planMigrations(dir direction, available []schemaMigration, applied []int64, steps int) ([]migrationStep, error) {
	isApplied := make(map[int64]bool, len(applied))
	for _, v := range applied {
		isApplied[v] = true
	}

	var plan []migrationStep
	switch dir {
	case directionUp:
		for _, m := range available {
			if isApplied[m.version] {
				continue
			}
			plan = append(plan, migrationStep{migration: m, direction: directionUp})
			if steps > 0 && len(plan) == steps {
				break
			}
		}
	case directionDown:
		byVersion := make(map[int64]schemaMigration, len(available))
		for _, m := range available {
			byVersion[m.version] = m
		}
		desc := slices.Clone(applied)
		slices.Sort(desc)
		slices.Reverse(desc)
		for _, v := range desc {
			if steps > 0 && len(plan) == steps {
				break
			}
			m, ok := byVersion[v]
			if !ok {
				return nil, fmt.Errorf("cannot roll back unknown schema version %d", v)
			}
			plan = append(plan, migrationStep{migration: m, direction: directionDown})
		}
	default:
		return nil, fmt.Errorf("unsupported migration direction %q", dir)
	}
	return plan, nil
}

// runStep выполняет скрипт и запись в журнал версий в одной транзакции.
func runStep(ctx context.Context, conn *sql.Conn, step migrationStep) (err error) {
	m := step.migration
	script, bookkeeping, args := m.up,
		`INSERT INTO marketplace_schema_migrations (version, name) VALUES ($1, $2)`,
		[]any{m.version, m.name}
	if step.direction == directionDown {
		script, bookkeeping, args = m.down,
			`DELETE FROM marketplace_schema_migrations WHERE version = $1`,
			[]any{m.version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", step.direction, m.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s migration %s: %w", step.direction, m.label(), err)
	}
	if _, err = tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("record %s migration %s: %w", step.direction, m.label(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", step.direction, m.label(), err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM marketplace_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// loadMigrations читает пары NNNN_name.{up,down}.sql и сортирует их по версии.
func loadMigrations(fsys fs.FS) ([]schemaMigration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*schemaMigration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &schemaMigration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("migration %d has two names: %s and %s", version, m.name, parts[2])
		}

		target := &m.up
		if direction(parts[3]) == directionDown {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	result := make([]schemaMigration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m.label())
		}
		result = append(result, *m)
	}
	slices.SortFunc(result, func(a, b schemaMigration) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		default:
			return 0
		}
	})
	return result, nil
}
