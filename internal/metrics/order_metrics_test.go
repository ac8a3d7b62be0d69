package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewOrderMetrics(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewOrderMetricsWithRegisterer should not return nil")
	}
	if metrics.operations == nil || metrics.operationDuration == nil || metrics.conflictRetries == nil {
		t.Error("operation collectors should not be nil")
	}
	if metrics.unitsReserved == nil || metrics.unitsRestored == nil || metrics.listingsSoldOut == nil {
		t.Error("inventory collectors should not be nil")
	}
	if metrics.cacheLookups == nil || metrics.inFlight == nil {
		t.Error("cache and in-flight collectors should not be nil")
	}
}

func TestNewOrderMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	first.RecordListingSoldOut()
	if got := counterValue(t, second.listingsSoldOut); got != 1 {
		t.Fatalf("expected shared counter value 1, got %f", got)
	}
}

func TestStartOperation_RecordsResultKind(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.StartOperation("reserve")(nil)
	metrics.StartOperation("reserve")(domain.ErrInsufficientQuantity)
	metrics.StartOperation("reserve")(errors.New("db down"))

	cases := map[string]float64{
		"ok":                  1,
		"failed_precondition": 1,
		"internal":            1,
	}
	for result, want := range cases {
		if got := counterValue(t, metrics.operations.WithLabelValues("reserve", result)); got != want {
			t.Errorf("result %s: expected %f, got %f", result, want, got)
		}
	}

	gauge := &dto.Metric{}
	if err := metrics.inFlight.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 0 {
		t.Errorf("expected no operations in flight, got %f", gauge.Gauge.GetValue())
	}
}

func TestInventoryCounters(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordUnitsReserved(3)
	metrics.RecordUnitsReserved(0)
	metrics.RecordUnitsRestored(2)
	metrics.ObserveConflictRetry("cancel")
	metrics.RecordCacheLookup("order", true)
	metrics.RecordCacheLookup("order", false)
	metrics.RecordCacheLookup("order", false)

	if got := counterValue(t, metrics.unitsReserved); got != 3 {
		t.Errorf("expected 3 reserved units, got %f", got)
	}
	if got := counterValue(t, metrics.unitsRestored); got != 2 {
		t.Errorf("expected 2 restored units, got %f", got)
	}
	if got := counterValue(t, metrics.conflictRetries.WithLabelValues("cancel")); got != 1 {
		t.Errorf("expected 1 conflict retry, got %f", got)
	}
	if got := counterValue(t, metrics.cacheLookups.WithLabelValues("order", "miss")); got != 2 {
		t.Errorf("expected 2 cache misses, got %f", got)
	}
}

func TestNilOrderMetricsIsNoop(t *testing.T) {
	var metrics *OrderMetrics

	metrics.StartOperation("reserve")(nil)
	metrics.ObserveConflictRetry("reserve")
	metrics.RecordUnitsReserved(1)
	metrics.RecordUnitsRestored(1)
	metrics.RecordListingSoldOut()
	metrics.RecordRatingRecompute()
	metrics.RecordCacheLookup("order", true)
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()
}
