package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool naming convention: {server}.{tool}. Server names are canonical
// service ids and never contain a dot, so the first dot separates the two.

// ToolDescriptor is one entry of the unified tool catalog.
type ToolDescriptor struct {
	// Name is the original tool name from the MCP server.
	Name string `json:"name"`

	// Description is the tool's description from the MCP server.
	Description string `json:"description,omitempty"`

	// InputSchema is the raw JSON schema for the tool's input.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`

	// Server is the live server offering this tool.
	Server string `json:"server"`

	// QualifiedName is the namespaced name: {server}.{tool}.
	QualifiedName string `json:"qualifiedName"`
}

// QualifiedName returns the namespaced tool name for a server's tool.
func QualifiedName(serverName, toolName string) string {
	return serverName + "." + toolName
}

// ParseQualifiedName splits a {server}.{tool} name. It fails with
// ErrToolNotFound when either half is missing.
func ParseQualifiedName(name string) (server, tool string, err error) {
	server, tool, ok := strings.Cut(name, ".")
	if !ok || server == "" || tool == "" {
		return "", "", fmt.Errorf("%w: %q is not a qualified tool name", ErrToolNotFound, name)
	}
	return server, tool, nil
}
