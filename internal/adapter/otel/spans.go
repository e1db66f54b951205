package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vanguard"

// StartHeartbeatSpan starts a span for one heartbeat cycle.
func StartHeartbeatSpan(ctx context.Context, runID, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "heartbeat",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("agent.id", agentID),
		),
	)
}

// StartSubOpSpan starts a span for one heartbeat sub-operation.
func StartSubOpSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "heartbeat.op",
		trace.WithAttributes(attribute.String("op.name", name)),
	)
}

// StartMissionSpan starts a span for a mission run.
func StartMissionSpan(ctx context.Context, missionID string, priority string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mission",
		trace.WithAttributes(
			attribute.String("mission.id", missionID),
			attribute.String("mission.priority", priority),
		),
	)
}

// StartStepSpan starts a span for one mission step execution.
func StartStepSpan(ctx context.Context, stepID, general string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mission.step",
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("step.general", general),
		),
	)
}
