package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere returns the value of the first sum data point carrying key=value.
func sumWhere(t *testing.T, met *metricdata.Metrics, key, value string) (int64, bool) {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestRecordCatalogRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCatalogRequest(ctx, "ok", 0.12)
	m.RecordCatalogRequest(ctx, "ok", 0.2)
	m.RecordCatalogRequest(ctx, "503", 0.05)

	rm := collect(t, reader)

	met := findMetric(rm, "portraitquiz.catalog.requests")
	if met == nil {
		t.Fatal("portraitquiz.catalog.requests not found")
	}
	if got, ok := sumWhere(t, met, "status", "ok"); !ok || got != 2 {
		t.Errorf("status=ok count = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumWhere(t, met, "status", "503"); !ok || got != 1 {
		t.Errorf("status=503 count = %d (found %v), want 1", got, ok)
	}

	hist := findMetric(rm, "portraitquiz.catalog.request.duration")
	if hist == nil {
		t.Fatal("portraitquiz.catalog.request.duration not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration is not a histogram")
	}
	var total uint64
	for _, dp := range data.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration samples = %d, want 3", total)
	}
}

func TestRecordSamplerOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSamplerOutcome(ctx, "filtered", "ok", 0.3)
	m.RecordSamplerOutcome(ctx, "browse", "no_valid_character", 1.1)
	m.RecordSamplerOutcome(ctx, "browse", "no_valid_character", 0.9)

	rm := collect(t, reader)
	met := findMetric(rm, "portraitquiz.sampler.outcomes")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumWhere(t, met, "outcome", "no_valid_character"); !ok || got != 2 {
		t.Errorf("outcome=no_valid_character = %d (found %v), want 2", got, ok)
	}
	if findMetric(rm, "portraitquiz.sampler.fetch.duration") == nil {
		t.Error("fetch duration histogram not recorded")
	}
}

func TestRecordVerdict(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVerdict(ctx, "exact", true)
	m.RecordVerdict(ctx, "none", false)
	m.RecordVerdict(ctx, "none", false)

	rm := collect(t, reader)
	met := findMetric(rm, "portraitquiz.match.verdicts")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got, ok := sumWhere(t, met, "tier", "none"); !ok || got != 2 {
		t.Errorf("tier=none = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumWhere(t, met, "matched", "true"); !ok || got != 1 {
		t.Errorf("matched=true = %d (found %v), want 1", got, ok)
	}
}

func TestActiveGamesGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveGames.Add(ctx, 1)
	m.ActiveGames.Add(ctx, 1)
	m.ActiveGames.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "portraitquiz.active_games")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("active_games has no sum data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active_games = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
