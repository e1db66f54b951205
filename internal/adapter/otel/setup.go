// Package otel provides OpenTelemetry instrumentation for Vanguard.
// Tracer/meter provider setup stays a stub until a collector endpoint is
// part of the deployment; instruments fall back to the global no-op
// providers, so call sites never branch on whether telemetry is enabled.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Debug("otel: tracer provider not configured, using globals", "service", serviceName)
	return func(_ context.Context) error { return nil }
}
