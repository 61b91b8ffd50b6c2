package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service instruments, grouped by the four golden signals:
// latency, traffic, errors and saturation (running jobs, open log streams).
type Metrics struct {
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter
	SweepValues    metric.Int64Histogram

	TemplatesGenerated metric.Int64Counter
	TemplateErrors     metric.Int64Counter

	ArtifactsConverted metric.Int64Counter
	LogStreamsActive   metric.Int64UpDownCounter
	LogBytesStreamed   metric.Int64Counter

	ProxyFetches metric.Int64Counter
}

// instruments creates instruments on one meter and keeps every error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc string, opts ...metric.Int64CounterOption) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, append(opts, metric.WithDescription(desc))...)
	b.err = errors.Join(b.err, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return g
}

func (b *instruments) seconds(name, desc string, bounds ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.err = errors.Join(b.err, err)
	return h
}

func (b *instruments) sizes(name, desc string, bounds ...float64) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.err = errors.Join(b.err, err)
	return h
}

// NewMetrics creates the instruments on a registry of their own and returns
// the handler that serves it, along with Go runtime and process metrics.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	b := &instruments{meter: provider.Meter("tomohub")}
	m := &Metrics{
		HTTPRequestDuration: b.seconds("http_request_duration_seconds", "HTTP request latency in seconds",
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
		HTTPRequestsTotal: b.counter("http_requests_total", "Total number of HTTP requests"),
		HTTPErrorsTotal:   b.counter("http_errors_total", "Total number of HTTP errors (4xx and 5xx)"),

		JobDuration: b.seconds("job_duration_seconds", "Reconstruction run duration in seconds",
			1, 5, 10, 30, 60, 120, 300, 600, 900, 1800, 3600),
		JobsTotal:      b.counter("jobs_total", "Total number of reconstruction runs launched"),
		JobErrorsTotal: b.counter("job_errors_total", "Total number of failed reconstruction runs"),
		JobsActive:     b.gauge("jobs_active", "Number of currently running reconstruction runs"),
		SweepValues: b.sizes("centre_sweep_values", "Number of centre values requested per sweep",
			1, 5, 10, 20, 50, 100, 200),

		TemplatesGenerated: b.counter("templates_generated_total", "Total number of method templates generated"),
		TemplateErrors: b.counter("template_resolution_errors_total",
			"Total number of methods skipped because they could not be resolved"),

		ArtifactsConverted: b.counter("artifacts_converted_total", "Total number of result images converted for display"),
		LogStreamsActive:   b.gauge("log_streams_active", "Number of open log streams"),
		LogBytesStreamed: b.counter("log_bytes_streamed_total", "Total bytes of log output sent to clients",
			metric.WithUnit("By")),

		ProxyFetches: b.counter("proxy_fetches_total", "Total number of remote images fetched for clients, by outcome"),
	}
	if b.err != nil {
		return nil, nil, b.err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), nil
}

// RecordHTTPRequest records one served request. route is the mux pattern.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		routeAttr(route),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobCreated records a new run being launched.
func (m *Metrics) RecordJobCreated(ctx context.Context, executor string) {
	attrs := metric.WithAttributes(executorAttr(executor))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobCompleted records a run exiting (success or failure).
func (m *Metrics) RecordJobCompleted(ctx context.Context, executor string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(executorAttr(executor), successAttr(success))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(executorAttr(executor)))

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSweep records the size of a launched centre sweep.
func (m *Metrics) RecordSweep(ctx context.Context, algorithm string, values int) {
	m.SweepValues.Record(ctx, int64(values), metric.WithAttributes(algorithmAttr(algorithm)))
}

// RecordTemplate records one generated template or one skipped method.
func (m *Metrics) RecordTemplate(ctx context.Context, module string, ok bool) {
	attrs := metric.WithAttributes(moduleAttr(module))
	if ok {
		m.TemplatesGenerated.Add(ctx, 1, attrs)
		return
	}
	m.TemplateErrors.Add(ctx, 1, attrs)
}

// RecordArtifactConverted records a result image conversion attempt.
func (m *Metrics) RecordArtifactConverted(ctx context.Context, success bool) {
	m.ArtifactsConverted.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
}

func (m *Metrics) RecordLogStreamOpened(ctx context.Context) {
	m.LogStreamsActive.Add(ctx, 1)
}

func (m *Metrics) RecordLogStreamClosed(ctx context.Context) {
	m.LogStreamsActive.Add(ctx, -1)
}

// RecordLogBytes records bytes sent on a log stream.
func (m *Metrics) RecordLogBytes(ctx context.Context, n int) {
	m.LogBytesStreamed.Add(ctx, int64(n))
}

// RecordProxyFetch records one remote fetch: ok, rejected, timeout or error.
func (m *Metrics) RecordProxyFetch(ctx context.Context, outcome string) {
	m.ProxyFetches.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}
