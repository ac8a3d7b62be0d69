package postgres

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	steps := []struct {
		name        string
		run         func() error
		wantVersion int64
		wantApplied int
	}{
		{name: "reset", run: func() error { return store.MigrateDown(ctx, 100) }},
		{name: "up all", run: func() error { return store.MigrateUp(ctx, 0) }, wantVersion: 4, wantApplied: 4},
		{name: "up again is a no-op", run: func() error { return store.MigrateUp(ctx, 0) }, wantVersion: 4, wantApplied: 4},
		{name: "drop outbox reviews and orders", run: func() error { return store.MigrateDown(ctx, 3) }, wantVersion: 1, wantApplied: 1},
		{name: "restore orders", run: func() error { return store.MigrateUp(ctx, 1) }, wantVersion: 2, wantApplied: 2},
		{name: "default down step", run: func() error { return store.MigrateDown(ctx, 0) }, wantVersion: 1, wantApplied: 1},
		{name: "down to empty", run: func() error { return store.MigrateDown(ctx, 1) }},
		{name: "down on empty schema", run: func() error { return store.MigrateDown(ctx, 1) }},
		{name: "back to latest", run: func() error { return store.MigrateUp(ctx, 0) }, wantVersion: 4, wantApplied: 4},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		version, applied, err := store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("%s: status: %v", step.name, err)
		}
		if version != step.wantVersion || applied != step.wantApplied {
			t.Fatalf("%s: got version=%d applied=%d, want %d/%d", step.name, version, applied, step.wantVersion, step.wantApplied)
		}
	}

	var listingsExists bool
	if err := store.DB().QueryRowContext(ctx, `SELECT to_regclass('public.listings') IS NOT NULL`).Scan(&listingsExists); err != nil {
		t.Fatalf("lookup listings table: %v", err)
	}
	if !listingsExists {
		t.Fatal("catalog tables must exist after migrating to latest")
	}
}

func TestMigrator_NilStoreAndBadDirection(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := nilStore.MigrateUp(ctx, 0); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("MigrateUp on nil store: %v", err)
	}
	if err := nilStore.MigrateDown(ctx, 1); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("MigrateDown on nil store: %v", err)
	}
	if _, _, err := nilStore.MigrationStatus(ctx); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("MigrationStatus on nil store: %v", err)
	}

	store := openRawPostgresStoreForIntegrationTest(t)
	if err := store.migrate(ctx, direction("sideways"), 0); err == nil {
		t.Fatal("expected unsupported direction error")
	}
}
