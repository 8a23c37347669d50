package observe

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests that no mux pattern matched.
const unmatchedRoute = "unmatched"

// probePaths are scraped by orchestrators every few seconds and logged at
// debug level only.
var probePaths = []string{"/healthz", "/readyz", "/metrics"}

// Middleware instruments the relay server's HTTP surface. Every request
// gets a server span continuing any W3C traceparent, an X-Correlation-ID
// response header, a latency sample and one log line.
//
// Spans and metrics are named after the mux pattern ("GET /rooms/{room}"),
// never the raw path, so room codes stay out of metric labels. The room code
// itself is attached to the span.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &instrumented{next: next, metrics: m, prop: propagation.TraceContext{}}
	}
}

type instrumented struct {
	next    http.Handler
	metrics *Metrics
	prop    propagation.TextMapPropagator
}

func (h *instrumented) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx := h.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
	)
	defer span.End()

	cid := CorrelationID(ctx)
	w.Header().Set("X-Correlation-ID", cid)
	h.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	r = r.WithContext(ctx)
	sw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.next.ServeHTTP(sw, r)

	route := r.Pattern
	if route == "" {
		route = unmatchedRoute
	}
	elapsed := time.Since(start)

	span.SetName(route)
	span.SetAttributes(semconv.HTTPResponseStatusCode(sw.statusCode), semconv.HTTPRoute(route))
	if room := r.PathValue("room"); room != "" {
		span.SetAttributes(attribute.String("polyglot.room", room))
	}
	if sw.statusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
	}

	h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("path", route),
	))

	level := slog.LevelInfo
	if isProbe(r.URL.Path) {
		level = slog.LevelDebug
	}
	slog.LogAttrs(ctx, level, "request completed",
		slog.String("trace_id", cid),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("route", route),
		slog.Int("status", sw.statusCode),
		slog.Duration("duration", elapsed),
	)
}

func isProbe(path string) bool {
	for _, p := range probePaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// statusRecorder remembers the status written downstream. It stays
// hijackable so websocket upgrades work through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the wrapped writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack detaches the connection. A hijacked request is recorded as 101.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil {
		r.statusCode = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}
