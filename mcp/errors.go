package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the MCP package.
var (
	// ErrNotConnected is returned when a request targets a server whose
	// handshake has not completed.
	ErrNotConnected = errors.New("mcp: server not connected")

	// ErrServerNotFound is returned when referencing a server name that
	// is not live in the Supervisor.
	ErrServerNotFound = errors.New("mcp: server not found")

	// ErrServerStopped rejects requests still pending when their server
	// exits or is stopped.
	ErrServerStopped = errors.New("mcp: server stopped")

	// ErrToolNotFound is returned when a tool name cannot be resolved to a
	// live server. Returned wrapped in a *ToolNotFoundError.
	ErrToolNotFound = errors.New("mcp: tool not found")

	// ErrToolDenied is returned when the tool policy denies a call.
	ErrToolDenied = errors.New("mcp: tool denied by policy")

	// ErrInvalidConfig is returned when a ServerConfig is missing
	// required fields.
	ErrInvalidConfig = errors.New("mcp: invalid server config")

	// ErrRequestTimeout rejects a pending request that received no
	// response within the request timeout.
	ErrRequestTimeout = errors.New("mcp: request timed out")

	// ErrHandshakeTimeout is wrapped in a *HandshakeError when the server
	// does not answer initialize in time.
	ErrHandshakeTimeout = errors.New("mcp: handshake timed out")
)

// SpawnError reports that the server process could not be started.
type SpawnError struct {
	Server string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("mcp: spawn %q: %v", e.Server, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError reports that the process started but protocol
// negotiation failed. The process has already been killed.
type HandshakeError struct {
	Server string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("mcp: handshake with %q: %v", e.Server, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// MalformedMessageError describes a line from a server that could not be
// parsed. It is logged and the line dropped; it never reaches callers.
type MalformedMessageError struct {
	Server string
	Line   []byte
	Err    error
}

func (e *MalformedMessageError) Error() string {
	line := string(e.Line)
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return fmt.Sprintf("mcp: malformed message from %q: %v: %s", e.Server, e.Err, line)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// RPCError is an error object returned by a server in a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("mcp: server error %d: %s", e.Code, e.Message)
	}
	return "mcp: server error: " + e.Message
}

// ToolNotFoundError is returned by Manager.Call when no live server offers
// the requested tool. Suggestions lists near matches so that a language
// model caller can correct itself.
type ToolNotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *ToolNotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("mcp: tool not found: %s", e.Name)
	}
	return fmt.Sprintf("mcp: tool not found: %s (did you mean: %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *ToolNotFoundError) Unwrap() error { return ErrToolNotFound }
