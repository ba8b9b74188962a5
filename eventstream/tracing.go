package eventstream

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope every span in this module is
// recorded under.
const TracerName = "github.com/meshcrew/groupchat/eventstream"

// InitTracing installs a process-global TracerProvider sampling at rate.
// No exporter is wired here — spans are recorded but not shipped anywhere
// until the caller registers one via the returned provider's
// RegisterSpanProcessor, keeping this core's dependency surface free of a
// particular trace backend.
func InitTracing(rate float64) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the package-scoped tracer for span-per-turn /
// span-per-dispatch instrumentation.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartTurnSpan opens a span covering one full engine turn for groupID.
func StartTurnSpan(ctx context.Context, groupID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "turn", trace.WithAttributes(attribute.String("group_id", groupID)))
}

// StartDispatchSpan opens a span covering a single agent dispatch
// (supervisor decision or worker tool loop) within a turn span.
func StartDispatchSpan(ctx context.Context, agent string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "dispatch", trace.WithAttributes(attribute.String("agent", agent)))
}
