package mcpruntime

import (
	"encoding/json"
	"time"
)

// protocolVersion is the MCP protocol version this runtime speaks in its
// "initialize" handshake.
const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 wire types. These mirror the subset of the protocol the MCP
// child-process ABI requires: numeric ids, no batching.

const jsonrpcVersion = "2.0"

// jsonrpcRequest is a JSON-RPC 2.0 request or notification (when ID is nil).
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response. A well-formed response has
// exactly one of Result or Error set; a response with both is treated as a
// Protocol error by the transport.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError is the error object embedded in a JSON-RPC 2.0 response.
type jsonrpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *jsonrpcError) Error() string {
	return e.Message
}

// inboundMessage is the union of what can arrive on a child's stdout: a
// response (has ID) or a notification (no ID, has Method). The runtime
// correlates only responses; notifications are logged and discarded.
type inboundMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

func (m *inboundMessage) isResponse() bool {
	return m.ID != nil
}

// LaunchSpec describes how to spawn an MCP server child process. It is
// immutable after Connect.
type LaunchSpec struct {
	Command string
	Args    []string
}

// ServerID is an opaque, non-empty, case-sensitive identifier chosen by the
// caller to name a connection. It is never interpreted by the runtime.
type ServerID string

// Status is a Transport Handle's position in its one-way state machine.
//
//	[new] -- spawn ok --> Connecting -- first send/recv --> Connected
//	   \-- spawn err --> (no handle; Connection error returned)
//	Connected -- reader EOF / exit --> Disconnected{reason}
//	Connected -- caller close -------> Disconnected{"requested"}
//	Connecting -- reader EOF ---------> Errored{reason}
//	Connecting -- caller close ------> Disconnected{"requested"}
type Status string

const (
	StatusConnecting   Status = "Connecting"
	StatusConnected    Status = "Connected"
	StatusDisconnected Status = "Disconnected"
	StatusErrored      Status = "Errored"
)

// ConnectionInfo is a point-in-time snapshot of one connection, returned by
// ListConnections.
type ConnectionInfo struct {
	ServerID    ServerID
	Command     string
	Args        []string
	Status      Status
	Reason      string // populated for Disconnected/Errored
	ConnectedAt *time.Time
}

// EventTopic names a lifecycle event published on the Runtime's event bus.
type EventTopic string

const (
	TopicServerConnected    EventTopic = "mcp://server-connected"
	TopicServerDisconnected EventTopic = "mcp://server-disconnected"
	TopicConnectionChanged  EventTopic = "mcp://connection-changed"
	TopicProcessError       EventTopic = "mcp://process-error"
)

// ConnectionEvent is a lifecycle notification delivered to event
// subscribers. Reason, Command and Args are populated when relevant to the
// topic and left zero otherwise.
type ConnectionEvent struct {
	Topic     EventTopic
	ServerID  ServerID
	Status    Status
	Reason    string
	Timestamp time.Time
	Command   string
	Args      []string
}

// HealthStatus is the constant metadata returned by HealthCheck.
type HealthStatus struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	PluginName  string `json:"plugin_name"`
	Initialized bool   `json:"initialized"`
}

// ToolCallResult is the result of ExecuteTool: the server's raw "result"
// payload for tools/call, plus how long the round trip took.
type ToolCallResult struct {
	Result     json.RawMessage `json:"result"`
	DurationMS int64           `json:"duration_ms"`
}
