package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

type command string

const (
	commandUp     command = "up"
	commandDown   command = "down"
	commandStatus command = "status"
)

type config struct {
	dsn     string
	command command
	steps   int
	timeout time.Duration
}

// schemaMigrator реализует *postgres.Store.
type schemaMigrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
}

// schemaState итог запуска.
type schemaState struct {
	command command
	version int64
	applied int
}

func (s schemaState) String() string {
	return fmt.Sprintf("%s: schema version=%d applied=%d", s.command, s.version, s.applied)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	state, err := apply(ctx, store, cfg)
	if err != nil {
		fail("%v", err)
	}
	log.WithFields(log.Fields{"version": state.version, "applied": state.applied}).Info(string(state.command) + " finished")
	fmt.Println(state)
}

func readConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	var (
		cfg       config
		direction string
	)
	fs.StringVar(&direction, "direction", string(commandUp), "up|down|status")
	fs.IntVar(&cfg.steps, "steps", 0, "versions to apply (0 = all) or roll back (0 = one)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN, defaults to MARKETPLACE_POSTGRES_DSN")
	fs.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.command = command(strings.ToLower(strings.TrimSpace(direction)))
	switch cfg.command {
	case commandUp, commandStatus:
	case commandDown:
		if cfg.steps <= 0 {
			cfg.steps = 1
		}
	default:
		return config{}, fmt.Errorf("unsupported direction %q (use up|down|status)", direction)
	}
	if cfg.steps < 0 {
		return config{}, fmt.Errorf("steps must be >= 0, got %d", cfg.steps)
	}
	if cfg.timeout <= 0 {
		return config{}, fmt.Errorf("timeout must be > 0")
	}

	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.dsn == "" {
		cfg.dsn = strings.TrimSpace(getenv("MARKETPLACE_POSTGRES_DSN"))
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("MARKETPLACE_POSTGRES_DSN (or -dsn) is required")
	}
	return cfg, nil
}

// apply выполняет команду и читает итоговую версию схемы.
func apply(ctx context.Context, m schemaMigrator, cfg config) (schemaState, error) {
	switch cfg.command {
	case commandUp:
		if err := m.MigrateUp(ctx, cfg.steps); err != nil {
			return schemaState{}, fmt.Errorf("migrate up: %w", err)
		}
	case commandDown:
		if err := m.MigrateDown(ctx, cfg.steps); err != nil {
			return schemaState{}, fmt.Errorf("migrate down: %w", err)
		}
	}

	version, applied, err := m.MigrationStatus(ctx)
	if err != nil {
		return schemaState{}, fmt.Errorf("read migration status: %w", err)
	}
	return schemaState{command: cfg.command, version: version, applied: applied}, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
