package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/zametkikostik/tonhub-exchange/pkg/otel"
)

var (
	apiMetrics     *APIMetrics
	apiMetricsOnce sync.Once
	metricsLock    sync.RWMutex
)

// APIMetrics holds the metrics instruments for exchange API monitoring
type APIMetrics struct {
	// Latency metrics
	requestLatency metric.Float64Histogram

	// Traffic metrics
	requestsTotal    metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter

	// Error metrics
	errorTotal metric.Int64Counter
}

// NewAPIMetrics creates a new APIMetrics instance
func NewAPIMetrics(meter metric.Meter) (*APIMetrics, error) {
	requestLatency, err := meter.Float64Histogram(
		"exchange.request.duration",
		metric.WithDescription("Response latency (seconds) of exchange API operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"exchange.requests.total",
		metric.WithDescription("Total number of exchange API operations started"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsInFlight, err := meter.Int64UpDownCounter(
		"exchange.requests.in_flight",
		metric.WithDescription("Number of exchange API operations currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorTotal, err := meter.Int64Counter(
		"exchange.errors.total",
		metric.WithDescription("Total number of failed exchange API operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &APIMetrics{
		requestLatency:   requestLatency,
		requestsTotal:    requestsTotal,
		requestsInFlight: requestsInFlight,
		errorTotal:       errorTotal,
	}, nil
}

// GetAPIMetrics returns a singleton instance of APIMetrics
func GetAPIMetrics(meter metric.Meter) (*APIMetrics, error) {
	var err error
	apiMetricsOnce.Do(func() {
		apiMetrics, err = NewAPIMetrics(meter)
	})
	if err != nil {
		return nil, err
	}
	return apiMetrics, nil
}

// RecordLatency records the latency of an API operation
func (m *APIMetrics) RecordLatency(ctx context.Context, operation string, duration time.Duration) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}
	m.requestLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	return nil
}

// IncRequests increments the total requests counter
func (m *APIMetrics) IncRequests(ctx context.Context, operation string) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	return nil
}

// AddInFlightRequests adds to the in-flight requests counter
func (m *APIMetrics) AddInFlightRequests(ctx context.Context, delta int64) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	m.requestsInFlight.Add(ctx, delta)
	return nil
}

// IncErrors increments the error counter
func (m *APIMetrics) IncErrors(ctx context.Context, operation string, reason string) error {
	metricsLock.Lock()
	defer metricsLock.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.String("error.reason", reason),
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	return nil
}
