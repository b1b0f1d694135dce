package mcpruntime

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func attrServerID(id ServerID) attribute.KeyValue {
	return attribute.String("server_id", string(id))
}

func attrToolName(name string) attribute.KeyValue {
	return attribute.String("tool_name", name)
}

func attrErrorKind(kind Kind) attribute.KeyValue {
	return attribute.String("kind", string(kind))
}

// instrumentationName identifies this library's meter to whatever
// MeterProvider the host process has globally registered. The runtime
// never constructs its own provider or exporter, since that remains the
// host's job, so until one is registered these instruments are no-ops.
const instrumentationName = "github.com/mcpcore/runtime"

// instruments bundles the metrics the façade records against. A zero-value
// instruments (as returned when instrument creation fails, which only
// happens against a misbehaving custom MeterProvider) degrades to silently
// recording nothing rather than panicking.
type instruments struct {
	toolCallDuration metric.Int64Histogram
	activeConns      metric.Int64UpDownCounter
	requestErrors    metric.Int64Counter
}

func newInstruments(logger *slog.Logger) instruments {
	meter := otel.Meter(instrumentationName)

	dur, err := meter.Int64Histogram(
		"mcpruntime.tool.call.duration",
		metric.WithDescription("Wall-clock duration of tools/call round trips"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logger.Debug("failed to create tool call duration histogram", "err", err)
	}

	active, err := meter.Int64UpDownCounter(
		"mcpruntime.connections.active",
		metric.WithDescription("Number of currently connected MCP servers"),
	)
	if err != nil {
		logger.Debug("failed to create active connections counter", "err", err)
	}

	errs, err := meter.Int64Counter(
		"mcpruntime.requests.errors",
		metric.WithDescription("Facade requests that failed, by error kind"),
	)
	if err != nil {
		logger.Debug("failed to create request errors counter", "err", err)
	}

	return instruments{toolCallDuration: dur, activeConns: active, requestErrors: errs}
}

func (in instruments) recordToolCallDuration(ctx context.Context, serverID ServerID, toolName string, ms int64) {
	if in.toolCallDuration == nil {
		return
	}
	in.toolCallDuration.Record(ctx, ms, metric.WithAttributes(
		attrServerID(serverID), attrToolName(toolName),
	))
}

func (in instruments) recordConnected(ctx context.Context) {
	if in.activeConns == nil {
		return
	}
	in.activeConns.Add(ctx, 1)
}

func (in instruments) recordDisconnected(ctx context.Context) {
	if in.activeConns == nil {
		return
	}
	in.activeConns.Add(ctx, -1)
}

func (in instruments) recordError(ctx context.Context, kind Kind) {
	if in.requestErrors == nil {
		return
	}
	in.requestErrors.Add(ctx, 1, metric.WithAttributes(attrErrorKind(kind)))
}
