// Package tracing wires up the process-wide OpenTelemetry tracer
// provider that pkg/gateway's spans are recorded against.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Init installs a tracer provider sampling every span. serviceName is
// not attached to the provider as a resource attribute. There is no
// exporter wired yet, so spans are recorded
// and dropped; this still exercises the real span lifecycle (parenting,
// attributes, status) rather than the otel no-op provider, and gives a
// seam to attach an exporter later without touching pkg/gateway.
func Init(serviceName string) func() {
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return func() { _ = tp.Shutdown(context.Background()) }
}
