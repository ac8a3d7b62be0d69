package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func okCheck(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewPingChecker("storage", memory.NewStore()))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 || response.Checks["storage"].Name != "storage" {
		t.Errorf("unexpected checks: %+v", response.Checks)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("redis", NewSimpleChecker("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if response.Checks["redis"].Message != "connection refused" {
		t.Errorf("unexpected message: %q", response.Checks["redis"].Message)
	}
}

func TestHealthHandler_DegradedKeepsOK(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", okCheck))
	handler.RegisterChecker("outbox", &OutboxChecker{
		source: fakeStats{stats: domain.OutboxStats{PendingCount: 3, OldestPendingAt: time.Unix(1000, 0)}},
		maxLag: time.Minute,
		now:    func() time.Time { return time.Unix(1000, 0).Add(5 * time.Minute) },
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("degraded service must stay 200, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", response.Status)
	}
}

func TestHandler_TimeoutReachesCheckers(t *testing.T) {
	handler := NewHandler("dev")
	handler.SetTimeout(20 * time.Millisecond)
	handler.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	started := time.Now()
	response := handler.Run(context.Background())
	if response.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy on timeout, got %s", response.Status)
	}
	if time.Since(started) > time.Second {
		t.Fatal("check must be bounded by handler timeout")
	}
	if got := handler.Names(); len(got) != 1 || got[0] != "slow" {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("test", NewSimpleChecker("test", okCheck))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %s", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("test", NewSimpleChecker("test", func(context.Context) error {
		return errors.New("not ready")
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %s", w.Body.String())
	}
}

func TestSimpleChecker(t *testing.T) {
	checker := NewSimpleChecker("test", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	check := checker.Check(context.Background())

	if check.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", check.Status)
	}
	if check.DurationMs < 10 {
		t.Errorf("expected duration >= 10ms, got %dms", check.DurationMs)
	}
}

func TestPingChecker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.Connect(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	checker := NewPingChecker("redis", cache.NewRedisCache(client))
	if check := checker.Check(context.Background()); check.Status != StatusHealthy {
		t.Fatalf("expected healthy redis, got %+v", check)
	}

	mr.Close()
	if check := checker.Check(context.Background()); check.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after redis shutdown, got %+v", check)
	}
}

type fakeStats struct {
	stats domain.OutboxStats
	err   error
}

func (f fakeStats) Stats() (domain.OutboxStats, error) { return f.stats, f.err }

func TestOutboxChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		source fakeStats
		want   Status
	}{
		{name: "empty", source: fakeStats{}, want: StatusHealthy},
		{name: "fresh backlog", source: fakeStats{stats: domain.OutboxStats{PendingCount: 2, OldestPendingAt: now.Add(-10 * time.Second)}}, want: StatusHealthy},
		{name: "stale backlog", source: fakeStats{stats: domain.OutboxStats{PendingCount: 2, OldestPendingAt: now.Add(-10 * time.Minute)}}, want: StatusDegraded},
		{name: "stats error", source: fakeStats{err: errors.New("db down")}, want: StatusUnhealthy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewOutboxChecker(tc.source, time.Minute)
			checker.now = func() time.Time { return now }
			if got := checker.Check(context.Background()).Status; got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
