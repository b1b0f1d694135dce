// Package mcpruntime implements the client-side core of the Model Context
// Protocol (MCP): a long-lived, in-process runtime that manages concurrent
// stdio connections to external MCP server processes, performs JSON-RPC 2.0
// request/response correlation over those pipes, and exposes a uniform
// command surface (health, connect, disconnect, list tools, execute tool)
// together with a stream of connection lifecycle events.
//
// The runtime owns four concerns that must stay correct simultaneously:
// child-process lifecycle, framed JSON-RPC transport, concurrent connection
// registry state, and lifecycle event fan-out. It does not implement MCP
// servers, transports other than child-process stdio, or reconnect policy.
// Those are left to the caller.
package mcpruntime
