package toolhost

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
)

// Defaults applied when neither an option nor a settings file sets a value.
const (
	// DefaultModel answers questions and picks tools.
	DefaultModel anthropic.Model = llm.DefaultModel

	// DefaultRequestTimeout abandons a pending tool server request.
	DefaultRequestTimeout = mcp.DefaultRequestTimeout

	// DefaultHandshakeTimeout bounds the initialize round trip.
	DefaultHandshakeTimeout = mcp.DefaultHandshakeTimeout

	// DefaultShutdownGrace is how long a server may take to exit on Stop.
	DefaultShutdownGrace = mcp.DefaultShutdownGrace

	// DefaultEmptyRetries is how often an empty search result is retried.
	DefaultEmptyRetries = 1
)
