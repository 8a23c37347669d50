// Package observe provides polyglot's observability primitives:
// OpenTelemetry metrics for the translation pipeline and relay, tracing
// helpers, trace-aware slog loggers and HTTP middleware for the relay server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported for
// Prometheus scraping by [InitProvider]. Tests should use [NewMetrics] with
// their own [metric.MeterProvider] rather than [DefaultMetrics].
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Utterance outcomes recorded by [Metrics.RecordUtterance].
const (
	OutcomeTranslated = "translated"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected"
	OutcomeNoSpeech   = "no_speech"
)

// Metrics holds every instrument. Safe for concurrent use.
type Metrics struct {
	// Provider latency per pipeline stage.
	STTDuration       metric.Float64Histogram
	TranslateDuration metric.Float64Histogram
	TTSDuration       metric.Float64Histogram

	// PipelineDuration is the latency of a whole run, clip in to result out.
	PipelineDuration metric.Float64Histogram

	// UtteranceDuration is the recorded audio length per clip.
	UtteranceDuration metric.Float64Histogram

	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter
	BreakerChanges   metric.Int64Counter
	Utterances       metric.Int64Counter
	RelayMessages    metric.Int64Counter

	ActiveSessions    metric.Int64UpDownCounter
	RelayConnections  metric.Int64UpDownCounter
	InFlightPipelines metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets in seconds. Cloud transcription and synthesis dominate, so
// the range reaches further than a typical RPC histogram.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

// httpBuckets cover the relay's fast handshakes and probes.
var httpBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &Metrics{}

	for _, h := range []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&m.STTDuration, "polyglot.stt.duration", "Latency of speech-to-text transcription.", latencyBuckets},
		{&m.TranslateDuration, "polyglot.translate.duration", "Latency of text translation.", latencyBuckets},
		{&m.TTSDuration, "polyglot.tts.duration", "Latency of speech synthesis.", latencyBuckets},
		{&m.PipelineDuration, "polyglot.pipeline.duration", "Latency of a full translation run.", latencyBuckets},
		{&m.UtteranceDuration, "polyglot.utterance.duration", "Length of recorded utterances.", latencyBuckets},
		{&m.HTTPRequestDuration, "polyglot.http.request.duration", "Relay HTTP request latency by method and route.", httpBuckets},
	} {
		inst, err := meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("observe: %s: %w", h.name, err)
		}
		*h.dst = inst
	}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ProviderRequests, "polyglot.provider.requests", "Provider API requests by provider, kind and status."},
		{&m.ProviderErrors, "polyglot.provider.errors", "Provider failures by provider and kind."},
		{&m.BreakerChanges, "polyglot.provider.breaker.transitions", "Circuit breaker state changes by provider and new state."},
		{&m.Utterances, "polyglot.utterances", "Utterances handed to the pipeline by outcome."},
		{&m.RelayMessages, "polyglot.relay.messages", "Relay messages by direction and type."},
	} {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("observe: %s: %w", c.name, err)
		}
		*c.dst = inst
	}

	for _, g := range []struct {
		dst  *metric.Int64UpDownCounter
		name string
		desc string
	}{
		{&m.ActiveSessions, "polyglot.active_sessions", "Running translation sessions by mode."},
		{&m.RelayConnections, "polyglot.relay.connections", "Websocket clients connected to the relay server."},
		{&m.InFlightPipelines, "polyglot.pipeline.in_flight", "Translation runs in progress."},
	} {
		inst, err := meter.Int64UpDownCounter(g.name, metric.WithDescription(g.desc))
		if err != nil {
			return nil, fmt.Errorf("observe: %s: %w", g.name, err)
		}
		*g.dst = inst
	}

	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] on
// [otel.GetMeterProvider]. Call it after [InitProvider]. Panics if an
// instrument cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordProviderCall records one provider call of kind ("transcribe",
// "translate" or "synthesize"): its latency, a request count and, when err
// is non-nil, an error count.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, d time.Duration, err error) {
	switch kind {
	case "transcribe":
		m.STTDuration.Record(ctx, d.Seconds())
	case "translate":
		m.TranslateDuration.Record(ctx, d.Seconds())
	case "synthesize":
		m.TTSDuration.Record(ctx, d.Seconds())
	}

	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordBreakerChange counts a circuit breaker moving to state.
func (m *Metrics) RecordBreakerChange(ctx context.Context, provider, state string) {
	m.BreakerChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", state),
	))
}

// RecordUtterance counts one clip by outcome and records its length.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string, length time.Duration) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.UtteranceDuration.Record(ctx, length.Seconds())
}

// TrackRun marks a pipeline run as in flight until the returned func is
// called.
func (m *Metrics) TrackRun(ctx context.Context) (done func()) {
	m.InFlightPipelines.Add(ctx, 1)
	return func() { m.InFlightPipelines.Add(context.WithoutCancel(ctx), -1) }
}

// SessionStarted counts a session of mode ("solo", "host" or "guest") as
// active.
func (m *Metrics) SessionStarted(ctx context.Context, mode string) {
	m.ActiveSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// SessionEnded reverses [Metrics.SessionStarted].
func (m *Metrics) SessionEnded(ctx context.Context, mode string) {
	m.ActiveSessions.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordRelayMessage counts one relay message.
func (m *Metrics) RecordRelayMessage(ctx context.Context, direction, msgType string) {
	m.RelayMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("type", msgType),
	))
}
