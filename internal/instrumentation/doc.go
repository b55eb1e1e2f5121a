// Package instrumentation wires OpenTelemetry metrics and tracing for the
// skedge service.
//
// The Provider owns the meter and tracer providers and their exporters
// (Prometheus pull, OTLP push, or stdout for development). The Metrics
// recorder exposes typed record methods for the handful of series the service
// emits: availability requests, provider API operations, token refreshes,
// registrations, and skipped events. A zero-value Metrics is a safe no-op so
// components never need to nil-check their recorder.
package instrumentation
