// Package observe provides application-wide observability primitives for the
// Pronunex capture engine: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Pronunex metrics.
const meterName = "github.com/jyotiradityaparida25/pronunex-sub000"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RecordingDuration tracks how long recording attempts actually ran
	// before stopping, in seconds.
	RecordingDuration metric.Float64Histogram

	// PermissionWait tracks the time between a permission request and the
	// platform's verdict.
	PermissionWait metric.Float64Histogram

	// SubmissionDuration tracks artifact upload round-trip latency.
	SubmissionDuration metric.Float64Histogram

	// --- Counters ---

	// CaptureAttempts counts recording attempts. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("format", ...)
	CaptureAttempts metric.Int64Counter

	// PermissionRequests counts device permission requests. Use with
	// attribute: attribute.String("verdict", ...)
	PermissionRequests metric.Int64Counter

	// Submissions counts artifact uploads. Use with attribute:
	//   attribute.String("status", ...)
	Submissions metric.Int64Counter

	// --- Error counters ---

	// CaptureErrors counts classified capture failures. Use with attribute:
	//   attribute.String("kind", ...)
	CaptureErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveClients tracks the number of connected UI clients across all
	// sessions.
	ActiveClients metric.Int64UpDownCounter

	// --- Size histograms ---

	// ArtifactSize tracks finished artifact sizes in bytes.
	ArtifactSize metric.Int64Histogram

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets defines histogram bucket boundaries (in seconds) sized for
// short pronunciation clips and their surrounding round trips.
var durationBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("pronunex.recording.duration",
		metric.WithDescription("Elapsed recording time per attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PermissionWait, err = m.Float64Histogram("pronunex.permission.wait",
		metric.WithDescription("Time between permission request and verdict."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SubmissionDuration, err = m.Float64Histogram("pronunex.submission.duration",
		metric.WithDescription("Artifact upload round-trip latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CaptureAttempts, err = m.Int64Counter("pronunex.capture.attempts",
		metric.WithDescription("Total recording attempts by outcome and negotiated format."),
	); err != nil {
		return nil, err
	}
	if met.PermissionRequests, err = m.Int64Counter("pronunex.permission.requests",
		metric.WithDescription("Total device permission requests by verdict."),
	); err != nil {
		return nil, err
	}
	if met.Submissions, err = m.Int64Counter("pronunex.submission.requests",
		metric.WithDescription("Total artifact submissions by status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CaptureErrors, err = m.Int64Counter("pronunex.capture.errors",
		metric.WithDescription("Total classified capture failures by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("pronunex.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveClients, err = m.Int64UpDownCounter("pronunex.active_clients",
		metric.WithDescription("Number of connected UI clients across all sessions."),
	); err != nil {
		return nil, err
	}

	// Size histogram.
	if met.ArtifactSize, err = m.Int64Histogram("pronunex.artifact.size",
		metric.WithDescription("Finished artifact size."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pronunex.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt is a convenience method that records a finished recording
// attempt with the standard attribute set.
func (m *Metrics) RecordAttempt(ctx context.Context, outcome, format string) {
	m.CaptureAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("format", format),
		),
	)
}

// RecordPermission is a convenience method that records a permission verdict.
func (m *Metrics) RecordPermission(ctx context.Context, verdict string) {
	m.PermissionRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("verdict", verdict)),
	)
}

// RecordCaptureError is a convenience method that records a classified
// capture failure.
func (m *Metrics) RecordCaptureError(ctx context.Context, kind string) {
	m.CaptureErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSubmission is a convenience method that records an artifact upload
// with its outcome status.
func (m *Metrics) RecordSubmission(ctx context.Context, status string) {
	m.Submissions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
