package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys, kept as constants for consistency across series.
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrResult    = "result"
)

// Metrics provides methods for recording observability metrics. The zero
// value is a no-op recorder.
type Metrics struct {
	availabilityRequestsTotal   metric.Int64Counter
	availabilityRequestDuration metric.Float64Histogram

	providerOperationsTotal   metric.Int64Counter
	providerOperationDuration metric.Float64Histogram

	tokenRefreshTotal  metric.Int64Counter
	registrationsTotal metric.Int64Counter
	skippedEventsTotal metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all series initialized on the
// given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.availabilityRequestsTotal, err = meter.Int64Counter(
		"availability_requests_total",
		metric.WithDescription("Total number of availability requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_requests_total counter: %w", err)
	}

	m.availabilityRequestDuration, err = meter.Float64Histogram(
		"availability_request_duration_seconds",
		metric.WithDescription("Availability request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_request_duration_seconds histogram: %w", err)
	}

	m.providerOperationsTotal, err = meter.Int64Counter(
		"provider_api_operations_total",
		metric.WithDescription("Total number of calendar provider API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_api_operations_total counter: %w", err)
	}

	m.providerOperationDuration, err = meter.Float64Histogram(
		"provider_api_operation_duration_seconds",
		metric.WithDescription("Calendar provider API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_api_operation_duration_seconds histogram: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.registrationsTotal, err = meter.Int64Counter(
		"oauth_registrations_total",
		metric.WithDescription("Total number of registration completions"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_registrations_total counter: %w", err)
	}

	m.skippedEventsTotal, err = meter.Int64Counter(
		"calendar_events_skipped_total",
		metric.WithDescription("Total number of calendar events dropped for unparseable times"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar_events_skipped_total counter: %w", err)
	}

	return m, nil
}

// RecordAvailabilityRequest records one availability request with its result
// status ("success" or "error") and duration.
func (m *Metrics) RecordAvailabilityRequest(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.availabilityRequestsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrStatus, status)}
	m.availabilityRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.availabilityRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordProviderOperation records a provider API call.
//
// Parameters:
//   - operation: list_events, exchange_code, refresh_token, account
//   - statusCode: HTTP status of the response, 0 when the call never completed
//   - duration: time taken for the call
func (m *Metrics) RecordProviderOperation(ctx context.Context, operation string, statusCode int, duration time.Duration) {
	if m == nil || m.providerOperationsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}
	m.providerOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.providerOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTokenRefresh records a refresh attempt with result "success" or
// "failure".
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordRegistration records a registration completion attempt with result
// "success" or "failure".
func (m *Metrics) RecordRegistration(ctx context.Context, result string) {
	if m == nil || m.registrationsTotal == nil {
		return
	}
	m.registrationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(attrResult, result)))
}

// AddSkippedEvents adds to the dropped-event tally.
func (m *Metrics) AddSkippedEvents(ctx context.Context, n int) {
	if m == nil || m.skippedEventsTotal == nil || n <= 0 {
		return
	}
	m.skippedEventsTotal.Add(ctx, int64(n))
}
