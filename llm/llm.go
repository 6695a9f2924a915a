// Package llm defines the completion collaborator used for tool selection
// and answer generation, and an implementation backed by the Anthropic
// Messages API.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNoCompleter is returned when a component needs a completion but
	// none was configured.
	ErrNoCompleter = errors.New("llm: no completer configured")

	// ErrEmptyRequest is returned for requests without messages.
	ErrEmptyRequest = errors.New("llm: request has no messages")
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image attached to a message. Data holds the raw
// bytes; implementations encode them as needed.
type Image struct {
	MediaType string // e.g. "image/png"
	Data      []byte
}

// Message is one conversation turn.
type Message struct {
	Role  Role
	Text  string
	Image *Image
}

// UserText builds a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// Request is a single completion request.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int

	// Temperature is left to the provider default when nil.
	Temperature *float64
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(v float64) *float64 { return &v }

// Usage reports the tokens a completion consumed.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Response is the fully collected completion.
type Response struct {
	Text       string
	Model      string
	StopReason string
	Usage      Usage
}

// Completer produces a full completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
