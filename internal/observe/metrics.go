// Package observe provides application-wide observability primitives for
// portraitquiz: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all portraitquiz metrics.
const meterName = "github.com/MrWong99/portraitquiz"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CatalogRequestDuration tracks single page fetches against the
	// collection source.
	CatalogRequestDuration metric.Float64Histogram

	// FetchDuration tracks a complete FetchNext call, including pool builds
	// and retry attempts.
	FetchDuration metric.Float64Histogram

	// --- Counters ---

	// CatalogRequests counts page fetches. Use with attribute:
	//   attribute.String("status", ...)
	CatalogRequests metric.Int64Counter

	// SamplerOutcomes counts FetchNext results. Use with attributes:
	//   attribute.String("mode", "filtered"|"browse"), attribute.String("outcome", ...)
	SamplerOutcomes metric.Int64Counter

	// Verdicts counts answer verifications. Use with attributes:
	//   attribute.String("tier", ...), attribute.Bool("matched", ...)
	Verdicts metric.Int64Counter

	// --- Gauges ---

	// ActiveGames tracks the number of live quiz games.
	ActiveGames metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote API round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CatalogRequestDuration, err = m.Float64Histogram("portraitquiz.catalog.request.duration",
		metric.WithDescription("Latency of a single collection page fetch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("portraitquiz.sampler.fetch.duration",
		metric.WithDescription("Latency of selecting the next character."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CatalogRequests, err = m.Int64Counter("portraitquiz.catalog.requests",
		metric.WithDescription("Total collection page requests by status."),
	); err != nil {
		return nil, err
	}
	if met.SamplerOutcomes, err = m.Int64Counter("portraitquiz.sampler.outcomes",
		metric.WithDescription("Total character selections by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Verdicts, err = m.Int64Counter("portraitquiz.match.verdicts",
		metric.WithDescription("Total answer verifications by deciding tier."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveGames, err = m.Int64UpDownCounter("portraitquiz.active_games",
		metric.WithDescription("Number of live quiz games."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("portraitquiz.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCatalogRequest records one page fetch with its latency in seconds.
// status is "ok", "canceled", or the HTTP status code / "error" on failure.
func (m *Metrics) RecordCatalogRequest(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.CatalogRequests.Add(ctx, 1, attrs)
	m.CatalogRequestDuration.Record(ctx, seconds, attrs)
}

// RecordSamplerOutcome records a FetchNext result and its latency.
func (m *Metrics) RecordSamplerOutcome(ctx context.Context, mode, outcome string, seconds float64) {
	m.SamplerOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
	m.FetchDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordVerdict records a verification result.
func (m *Metrics) RecordVerdict(ctx context.Context, tier string, matched bool) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("matched", strconv.FormatBool(matched)),
		),
	)
}
