package mcp

import (
	"encoding/json"
	"strings"
)

// ProtocolVersion is the MCP protocol version requested in initialize.
const ProtocolVersion = "2025-06-18"

// JSON-RPC methods used by the client.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "notifications/initialized"
	MethodShutdown      = "shutdown"
	MethodPing          = "ping"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodPromptsList   = "prompts/list"
)

// JSON-RPC 2.0 standard error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
)

// message is any inbound or outbound JSON-RPC 2.0 object. A response has
// an ID and Result or Error; a request has an ID and Method; a
// notification has a Method and no ID.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m *message) hasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

// isResponse reports whether m answers one of our requests.
func (m *message) isResponse() bool {
	return m.hasID() && m.Method == ""
}

// outboundRequest is written for SendRequest.
type outboundRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// outboundNotification is written for SendNotification.
type outboundNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// outboundResponse answers a server-initiated request.
type outboundResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// --- MCP protocol types ---

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// Implementation identifies a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ServerCapabilities declares what a server supports. A nil entry means
// the capability was not advertised.
type ServerCapabilities struct {
	Tools     *ListCapability `json:"tools,omitempty"`
	Resources *ListCapability `json:"resources,omitempty"`
	Prompts   *ListCapability `json:"prompts,omitempty"`
	Logging   map[string]any  `json:"logging,omitempty"`
}

// ListCapability carries the listChanged flag shared by tools, resources
// and prompts.
type ListCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

type listParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type toolsListResult struct {
	Tools      []ToolInfo `json:"tools"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type resourcesListResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type promptsListResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

type resourcesReadResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent is one entry of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ToolInfo describes a tool discovered from an MCP server.
type ToolInfo struct {
	// Name is the tool's name as reported by the server.
	Name string `json:"name"`

	// Description is a human-readable description of the tool.
	Description string `json:"description,omitempty"`

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Prompt is a prompt template advertised by a server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument is one argument of a Prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ContentBlock is an MCP content block within a tool result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// CallResult is the decoded result of tools/call.
type CallResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`

	// Raw is the undecoded result exactly as the server sent it.
	Raw json.RawMessage `json:"-"`
}

// Text concatenates the text blocks of the result.
func (r *CallResult) Text() string {
	var out []byte
	for _, block := range r.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, block.Text...)
	}
	return string(out)
}

// Empty reports whether the result carries no usable data.
func (r *CallResult) Empty() bool {
	if r == nil {
		return true
	}
	if r.StructuredContent != nil {
		return false
	}
	for _, block := range r.Content {
		if block.Type != "text" || trimmedNonEmpty(block.Text) {
			return false
		}
	}
	return true
}

func trimmedNonEmpty(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "[]", "{}", "null":
		return false
	}
	return true
}
