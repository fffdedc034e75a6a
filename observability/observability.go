// Package observability provides the orchestration engine's ambient metrics
// and tracing: a disabled-by-default Prometheus collector set and an
// OTLP/gRPC tracer, both no-ops until explicitly enabled (grounded on
// pkg/observability/metrics.go and tracer.go's config-gated init pattern).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// MetricsConfig toggles and sweeps the Prometheus collector set.
type MetricsConfig struct {
	Enabled bool
	Addr    string // if non-empty, ListenAndServeMetrics exposes /metrics here
}

// Metrics is the full set of gauges/histograms/counters. The Wave Executor
// reports wave and Task Board status figures and the Worker Agent reports
// worker runs; ObserveLLMCall and ObserveToolCall have no caller in this
// module. A nil
// *Metrics (returned when disabled) is safe to call every method on, all
// recording methods are no-ops in that case.
type Metrics struct {
	registry *prometheus.Registry

	boardStatus *prometheus.GaugeVec

	waveParallelism prometheus.Gauge
	waveDuration    prometheus.Histogram

	workerDuration *prometheus.HistogramVec
	workerErrors   *prometheus.CounterVec

	llmCallDuration *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec

	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec
}

// NewMetrics builds the collector set, or returns (nil, nil) when disabled.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		boardStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swarmcore_board_tasks", Help: "Task Board entry count by status.",
		}, []string{"status"}),
		waveParallelism: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swarmcore_wave_parallelism", Help: "Workers running concurrently in the most recent wave.",
		}),
		waveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "swarmcore_wave_duration_seconds", Help: "Wall-clock duration of one wave.",
			Buckets: prometheus.DefBuckets,
		}),
		workerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "swarmcore_worker_duration_seconds", Help: "Worker Agent run duration by role.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		workerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmcore_worker_errors_total", Help: "Worker Agent terminal failures by role.",
		}, []string{"role"}),
		llmCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "swarmcore_llm_call_duration_seconds", Help: "LLM Chat call duration by model.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmcore_llm_tokens_total", Help: "Tokens consumed by model.",
		}, []string{"model"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "swarmcore_tool_call_duration_seconds", Help: "Tool invocation duration by tool name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmcore_tool_errors_total", Help: "Tool invocation failures by tool name.",
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.boardStatus, m.waveParallelism, m.waveDuration,
		m.workerDuration, m.workerErrors,
		m.llmCallDuration, m.llmTokens,
		m.toolCallDuration, m.toolErrors,
	)
	return m, nil
}

// ListenAndServeMetrics exposes /metrics on addr; intended to run in its own
// goroutine for the lifetime of the process.
func (m *Metrics) ListenAndServeMetrics(addr string) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}

func (m *Metrics) SetBoardStatusCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.boardStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) ObserveWave(parallelism int, duration time.Duration) {
	if m == nil {
		return
	}
	m.waveParallelism.Set(float64(parallelism))
	m.waveDuration.Observe(duration.Seconds())
}

func (m *Metrics) ObserveWorker(role string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.workerDuration.WithLabelValues(role).Observe(duration.Seconds())
	if failed {
		m.workerErrors.WithLabelValues(role).Inc()
	}
}

func (m *Metrics) ObserveLLMCall(model string, duration time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.llmCallDuration.WithLabelValues(model).Observe(duration.Seconds())
	m.llmTokens.WithLabelValues(model).Add(float64(tokens))
}

func (m *Metrics) ObserveToolCall(tool string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrors.WithLabelValues(tool).Inc()
	}
}

// TracerConfig toggles and points the OTLP/gRPC exporter.
type TracerConfig struct {
	Enabled     bool
	EndpointURL string
	ServiceName string
}

// InitTracer installs a batching OTLP/gRPC tracer provider as the global
// provider, or a no-op provider when disabled. When enabled the returned
// value is an *sdktrace.TracerProvider, whose Shutdown flushes pending
// spans; the trace.TracerProvider interface itself has no Shutdown.
func InitTracer(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns a named tracer off the given provider; pass the result of
// InitTracer (or otel.GetTracerProvider() if using the global).
func Tracer(tp trace.TracerProvider, name string) trace.Tracer {
	return tp.Tracer(name)
}
