package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

// Metrics records service counters through the OTel metric API and exposes them in
// Prometheus text format. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	apiRequests metric.Int64Counter
	apiLatency  metric.Float64Histogram
	requests    metric.Int64Counter
	locks       metric.Int64Counter
	generation  metric.Float64Histogram
	purgedRows  metric.Int64Counter
	jobs        metric.Int64Counter
	lockBackend metric.Int64Counter
}

func NewMetrics(log *logger.Logger) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/wsabol/psychic-chat-poc-sub001")

	m := &Metrics{registry: reg, provider: provider}
	if m.apiRequests, err = meter.Int64Counter("content_api_requests",
		metric.WithDescription("HTTP requests by method/route/status.")); err != nil {
		return nil, err
	}
	if m.apiLatency, err = meter.Float64Histogram("content_api_request_duration",
		metric.WithUnit("s"),
		metric.WithDescription("HTTP request latency."),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 120)); err != nil {
		return nil, err
	}
	if m.requests, err = meter.Int64Counter("content_requests",
		metric.WithDescription("Content lookups by kind and resulting status.")); err != nil {
		return nil, err
	}
	if m.locks, err = meter.Int64Counter("content_lock",
		metric.WithDescription("Generation lock attempts by outcome.")); err != nil {
		return nil, err
	}
	if m.generation, err = meter.Float64Histogram("content_generation",
		metric.WithUnit("s"),
		metric.WithDescription("Generation attempt duration by kind and outcome."),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 30, 60, 90, 120, 180)); err != nil {
		return nil, err
	}
	if m.purgedRows, err = meter.Int64Counter("content_purged_rows",
		metric.WithDescription("Artifact rows deleted by reason.")); err != nil {
		return nil, err
	}
	if m.jobs, err = meter.Int64Counter("content_jobs",
		metric.WithDescription("Background generation jobs by dispatcher and status.")); err != nil {
		return nil, err
	}
	if m.lockBackend, err = meter.Int64Counter("content_lock_backend_errors",
		metric.WithDescription("Absorbed lock backend failures by operation.")); err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("metrics initialized")
	}
	return m, nil
}

// Handler serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// StartServer serves Handler on addr until ctx is done. Used by processes without
// the HTTP API (worker).
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)
	ctx := context.Background()
	m.apiRequests.Add(ctx, 1, attrs)
	m.apiLatency.Record(ctx, dur.Seconds(), attrs)
}

func (m *Metrics) IncRequest(kind, status string) {
	if m == nil {
		return
	}
	m.requests.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// IncLock counts a lock attempt: acquired, held or fail_open.
func (m *Metrics) IncLock(outcome string) {
	if m == nil {
		return
	}
	m.locks.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) IncLockBackendError(op string) {
	if m == nil {
		return
	}
	m.lockBackend.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) ObserveGeneration(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.generation.Record(context.Background(), dur.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) AddPurged(reason string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.purgedRows.Add(context.Background(), rows, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) IncJob(dispatcher, status string) {
	if m == nil {
		return
	}
	m.jobs.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("dispatcher", dispatcher),
		attribute.String("status", status),
	))
}
