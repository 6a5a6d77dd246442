// Package observability builds the process logger, Prometheus metrics,
// OpenTelemetry providers and the health endpoint.
//
// Services take a *Metrics that may be nil; every Observe method is a no-op
// on a nil receiver so tests and tools can skip metrics entirely.
package observability
