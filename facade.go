package mcpruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// runtimeVersion and pluginName are the constant metadata HealthCheck
// reports; they identify this runtime build, not any particular connection.
const (
	runtimeVersion = "1.0.0"
	pluginName     = "mcpruntime"
)

const clientName = "mcpruntime"

// Runtime is the surface callers use: every method is safe under parallel
// invocation from multiple goroutines.
type Runtime struct {
	ids     idGenerator
	reg     *registry
	bus     *eventBus
	cfg     RuntimeConfig
	logger  *slog.Logger
	metrics instruments
}

// New builds a Runtime. Options are applied in order, each overriding
// whatever came before it (including a prior WithEnv()).
func New(opts ...Option) *Runtime {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	metrics := newInstruments(cfg.Logger)
	bus := newEventBus(cfg.EventBufferSize, cfg.Logger)
	reg := newRegistry(bus, cfg.Logger, cfg.MaxLineBytes, metrics)

	return &Runtime{
		reg:     reg,
		bus:     bus,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: metrics,
	}
}

// HealthCheck returns constant metadata about the runtime. It never fails.
func (rt *Runtime) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{
		Status:      "healthy",
		Version:     runtimeVersion,
		PluginName:  pluginName,
		Initialized: true,
	}
}

// ConnectServer spawns the child described by command/args under id,
// performs the "initialize" handshake eagerly, and returns once the
// connection is ready to serve tools/* calls. On any failure, whether at
// spawn or at handshake, no connection is left behind under id.
func (rt *Runtime) ConnectServer(ctx context.Context, id ServerID, spec LaunchSpec) *Error {
	tr, err := rt.reg.connect(id, spec)
	if err != nil {
		rt.metrics.recordError(ctx, err.Kind)
		return err
	}

	if initErr := rt.initialize(ctx, id, tr); initErr != nil {
		rt.reg.abandon(id)
		rt.metrics.recordError(ctx, initErr.Kind)
		return initErr
	}

	rt.reg.markConnected(id, tr)

	return nil
}

// initialize performs the MCP "initialize" handshake and the subsequent
// "notifications/initialized" notification required before any tools/*
// call. A protocol-version mismatch is reported as a Protocol
// error; the caller (ConnectServer) is responsible for tearing the
// connection down on any initialize failure.
func (rt *Runtime) initialize(ctx context.Context, id ServerID, tr *transport) *Error {
	type initParams struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}

	params := initParams{ProtocolVersion: protocolVersion, Capabilities: map[string]any{}}
	params.ClientInfo.Name = clientName
	params.ClientInfo.Version = runtimeVersion

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return systemErr(string(id), "failed to marshal initialize params", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, rt.cfg.InitializeTimeout)
	defer cancel()

	result, callErr := tr.send(reqCtx, rt.ids.next(), "initialize", paramsJSON)
	if callErr != nil {
		return callErr
	}

	var initResult struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if err := json.Unmarshal(result, &initResult); err != nil {
		return protocolErr(string(id), "malformed initialize result", err)
	}
	if initResult.ProtocolVersion != protocolVersion {
		return protocolErr(string(id), fmt.Sprintf(
			"protocol version mismatch: server=%s client=%s", initResult.ProtocolVersion, protocolVersion), nil)
	}

	if err := tr.notify("notifications/initialized", nil); err != nil {
		return connectionErr(string(id), "failed to send initialized notification", err)
	}

	return nil
}

// DisconnectServer tears down the connection named by id.
func (rt *Runtime) DisconnectServer(ctx context.Context, id ServerID) *Error {
	err := rt.reg.disconnect(id)
	if err != nil {
		rt.metrics.recordError(ctx, err.Kind)
	}
	return err
}

// ListConnections returns a snapshot of every currently held connection.
func (rt *Runtime) ListConnections(context.Context) []ConnectionInfo {
	return rt.reg.list()
}

// ListTools issues a single "tools/list" request against id and returns the
// server's raw result object.
func (rt *Runtime) ListTools(ctx context.Context, id ServerID) (json.RawMessage, *Error) {
	return rt.call(ctx, id, "tools/list", json.RawMessage(`{}`), rt.cfg.ListToolsTimeout)
}

// ExecuteTool issues a single "tools/call" request against id and returns
// the raw result alongside how long the round trip took.
func (rt *Runtime) ExecuteTool(ctx context.Context, id ServerID, toolName string, arguments json.RawMessage) (ToolCallResult, *Error) {
	if arguments == nil {
		arguments = json.RawMessage(`{}`)
	}

	params := struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}{Name: toolName, Arguments: arguments}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		rt.metrics.recordError(ctx, KindSystem)
		return ToolCallResult{}, systemErr(string(id), "failed to marshal tools/call params", err)
	}

	start := time.Now()
	result, callErr := rt.call(ctx, id, "tools/call", paramsJSON, rt.cfg.ToolCallTimeout)
	duration := time.Since(start)
	durationMS := duration.Milliseconds()

	rt.metrics.recordToolCallDuration(ctx, id, toolName, durationMS)

	if callErr != nil {
		return ToolCallResult{}, callErr
	}

	return ToolCallResult{Result: result, DurationMS: durationMS}, nil
}

// call implements the request cycle common to every tools/* operation:
// resolve the transport, mint an id, send, and translate the result.
func (rt *Runtime) call(ctx context.Context, id ServerID, method string, params json.RawMessage, timeout time.Duration) (json.RawMessage, *Error) {
	tr, err := rt.reg.get(id)
	if err != nil {
		rt.metrics.recordError(ctx, err.Kind)
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, callErr := tr.send(reqCtx, rt.ids.next(), method, params)
	if callErr != nil {
		rt.metrics.recordError(ctx, callErr.Kind)
		return nil, callErr
	}
	return result, nil
}

// Subscribe returns a subscription delivering every ConnectionEvent the
// runtime publishes from this point on. Call Unsubscribe when done.
func (rt *Runtime) Subscribe() *Subscription {
	return rt.bus.subscribe()
}

// Unsubscribe stops delivery to a subscription obtained from Subscribe.
func (rt *Runtime) Unsubscribe(sub *Subscription) {
	rt.bus.unsubscribe(sub)
}

// Shutdown closes every held connection and stops the event bus. No child
// process outlives a shut-down Runtime.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	return rt.reg.shutdown(ctx)
}
