package mcp

// Resource represents an MCP resource exposed by a server.
type Resource struct {
	// URI is the resource identifier (e.g. "file:///path" or "db://table").
	URI string `json:"uri"`

	// Name is a human-readable name for the resource.
	Name string `json:"name"`

	// Description explains what the resource contains.
	Description string `json:"description,omitempty"`

	// MIMEType is the content type (e.g. "text/plain", "application/json").
	MIMEType string `json:"mimeType,omitempty"`
}
