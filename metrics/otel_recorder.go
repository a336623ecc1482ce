package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// circuit states encoded as gauge values
var circuitStateValues = map[string]int64{
	"closed":    0,
	"open":      1,
	"half_open": 2,
}

// OTelRecorder implements Recorder on OpenTelemetry instruments exported in
// Prometheus format
type OTelRecorder struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	deliveredCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
	retryCounter     metric.Int64Counter
	latencyHistogram metric.Float64Histogram
	circuitOpened    metric.Int64Counter
	circuitState     metric.Int64Gauge
}

// NewOTelRecorder creates a new OpenTelemetry recorder with a Prometheus
// exporter registered on the global meter provider
func NewOTelRecorder() (*OTelRecorder, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-relay",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	r := &OTelRecorder{
		meterProvider: meterProvider,
		meter:         meter,
	}

	if err := r.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return r, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (r *OTelRecorder) registerInstruments() error {
	var err error

	r.deliveredCounter, err = r.meter.Int64Counter(
		"webhook.delivered",
		metric.WithDescription("Number of webhooks delivered successfully"),
		metric.WithUnit("{webhooks}"),
	)
	if err != nil {
		return fmt.Errorf("creating delivered counter: %w", err)
	}

	r.failedCounter, err = r.meter.Int64Counter(
		"webhook.failed",
		metric.WithDescription("Number of webhook deliveries that failed"),
		metric.WithUnit("{webhooks}"),
	)
	if err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}

	r.retryCounter, err = r.meter.Int64Counter(
		"webhook.retries",
		metric.WithDescription("Number of webhook delivery retry attempts"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating retry counter: %w", err)
	}

	r.latencyHistogram, err = r.meter.Float64Histogram(
		"webhook.delivery.duration",
		metric.WithDescription("End-to-end webhook delivery duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating latency histogram: %w", err)
	}

	r.circuitOpened, err = r.meter.Int64Counter(
		"webhook.circuit.opened",
		metric.WithDescription("Number of times a circuit breaker opened"),
		metric.WithUnit("{transitions}"),
	)
	if err != nil {
		return fmt.Errorf("creating circuit opened counter: %w", err)
	}

	r.circuitState, err = r.meter.Int64Gauge(
		"webhook.circuit.state",
		metric.WithDescription("Circuit breaker state per endpoint (0=closed, 1=open, 2=half_open)"),
	)
	if err != nil {
		return fmt.Errorf("creating circuit state gauge: %w", err)
	}

	return nil
}

// RecordSuccess counts a delivered webhook and observes its latency
func (r *OTelRecorder) RecordSuccess(event, endpoint string, latency time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event.type", event),
		attribute.String("endpoint", endpoint),
	)
	r.deliveredCounter.Add(context.Background(), 1, attrs)
	r.latencyHistogram.Record(context.Background(), latency.Seconds(), attrs)
}

// RecordFailure counts a failed delivery with its status or error class
func (r *OTelRecorder) RecordFailure(event, endpoint, code string) {
	r.failedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event.type", event),
		attribute.String("endpoint", endpoint),
		attribute.String("code", code),
	))
}

// RecordRetry counts a retry attempt
func (r *OTelRecorder) RecordRetry(event string, attempt int) {
	r.retryCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event.type", event),
		attribute.Int("attempt", attempt),
	))
}

// RecordCircuitOpen counts a breaker opening
func (r *OTelRecorder) RecordCircuitOpen(endpoint string) {
	r.circuitOpened.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// SetCircuitState reports the breaker state for an endpoint
func (r *OTelRecorder) SetCircuitState(endpoint, state string) {
	value, known := circuitStateValues[state]
	if !known {
		return
	}
	r.circuitState.Record(context.Background(), value, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (r *OTelRecorder) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (r *OTelRecorder) Shutdown(ctx context.Context) error {
	if r.meterProvider != nil {
		return r.meterProvider.Shutdown(ctx)
	}
	return nil
}
