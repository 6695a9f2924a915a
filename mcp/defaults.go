package mcp

import "time"

const (
	// DefaultRequestTimeout abandons a pending request with no response.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds the initialize round trip.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultShutdownGrace is how long Stop waits for a voluntary exit
	// before killing the process.
	DefaultShutdownGrace = 2 * time.Second

	// DefaultMaxSuggestions caps the near matches in a ToolNotFoundError.
	DefaultMaxSuggestions = 5

	// maxListPages guards against servers that never stop paginating.
	maxListPages = 100
)

// DefaultClientInfo identifies this client in initialize.
var DefaultClientInfo = Implementation{Name: "toolhost", Version: "0.1.0"}
