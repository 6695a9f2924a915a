// Package hook defines callbacks that intercept routed tool calls.
//
// A [Matcher] binds a set of [Func] callbacks to an [Event] and an optional
// glob over the qualified tool name ("server.tool"). Pre-call hooks may
// block the call or rewrite its arguments; post-call hooks observe.
package hook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/armatrix/toolhost/mcp"
)

// Event identifies when a hook fires.
type Event string

const (
	PreToolCall     Event = "PreToolCall"
	PostToolCall    Event = "PostToolCall"
	ToolCallFailure Event = "ToolCallFailure"
)

// ErrBlocked is wrapped by every *BlockedError.
var ErrBlocked = errors.New("hook: tool call blocked")

// BlockedError reports a call stopped by a PreToolCall hook.
type BlockedError struct {
	Tool   string
	Reason string
}

func (e *BlockedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("hook: tool %s blocked", e.Tool)
	}
	return fmt.Sprintf("hook: tool %s blocked: %s", e.Tool, e.Reason)
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }

// Input is passed to hook functions.
type Input struct {
	Event     Event
	Tool      mcp.ToolDescriptor
	Arguments map[string]any

	Result *mcp.CallResult // PostToolCall.
	Err    error           // ToolCallFailure.
}

// Result is returned by hook functions. A nil or zero value means no action.
type Result struct {
	Block  bool
	Reason string

	// UpdatedArguments replaces the call arguments (PreToolCall only).
	UpdatedArguments map[string]any
}

// Func is the signature for hook callbacks.
type Func func(ctx context.Context, input *Input) (*Result, error)

// Matcher defines which calls a set of hooks fires for.
type Matcher struct {
	Event   Event
	Pattern string        // Glob over the qualified tool name (empty = all).
	Hooks   []Func        // Called in order.
	Timeout time.Duration // Max time for all hooks in this matcher (0 = 30s).
}
