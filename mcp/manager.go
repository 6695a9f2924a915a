package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ServerSource is the subset of Supervisor the router depends on.
type ServerSource interface {
	// Servers returns the connected servers in start order.
	Servers() []*ServerProcess
	SendRequest(ctx context.Context, name, method string, params any) (json.RawMessage, error)
}

var _ ServerSource = (*Supervisor)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPolicy filters the catalog through p.
func WithPolicy(p Policy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithMaxSuggestions caps the suggestions in a ToolNotFoundError.
func WithMaxSuggestions(n int) ManagerOption {
	return func(m *Manager) { m.maxSuggestions = n }
}

// WithManagerLogger sets the router's logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// Manager is the unified tool catalog and router over every live server.
// It holds no server state of its own: the catalog is rebuilt from the
// source on each call.
type Manager struct {
	source         ServerSource
	policy         Policy
	maxSuggestions int
	logger         *slog.Logger
}

// NewManager creates a router over source.
func NewManager(source ServerSource, opts ...ManagerOption) *Manager {
	m := &Manager{source: source}
	for _, fn := range opts {
		fn(m)
	}
	if m.maxSuggestions <= 0 {
		m.maxSuggestions = DefaultMaxSuggestions
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.logger = m.logger.With("component", "mcp.router")
	return m
}

// Policy returns the active tool policy.
func (m *Manager) Policy() Policy { return m.policy }

// AllTools flattens the tools of every connected server, in start order,
// omitting tools the policy denies.
func (m *Manager) AllTools() []ToolDescriptor {
	var out []ToolDescriptor
	for _, sp := range m.source.Servers() {
		out = append(out, m.describe(sp)...)
	}
	return out
}

// ToolsForServer returns the permitted tools of one server.
func (m *Manager) ToolsForServer(name string) []ToolDescriptor {
	for _, sp := range m.source.Servers() {
		if sp.Name() == name {
			return m.describe(sp)
		}
	}
	return nil
}

// ServerNames returns the connected server names in start order.
func (m *Manager) ServerNames() []string {
	servers := m.source.Servers()
	names := make([]string, 0, len(servers))
	for _, sp := range servers {
		names = append(names, sp.Name())
	}
	return names
}

func (m *Manager) describe(sp *ServerProcess) []ToolDescriptor {
	tools := sp.Tools()
	out := make([]ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		q := QualifiedName(sp.Name(), t.Name)
		if m.policy.Evaluate(q) == Deny {
			continue
		}
		out = append(out, ToolDescriptor{
			Name:          t.Name,
			Description:   t.Description,
			InputSchema:   t.InputSchema,
			Server:        sp.Name(),
			QualifiedName: q,
		})
	}
	return out
}

// Resolve finds the tool a caller means by name. A short name matches the
// first-started server offering it; otherwise the name is tried as
// server.tool.
func (m *Manager) Resolve(name string) (ToolDescriptor, error) {
	servers := m.source.Servers()
	var all []ToolDescriptor
	for _, sp := range servers {
		all = append(all, m.describe(sp)...)
	}

	for _, t := range all {
		if t.Name == name {
			return t, nil
		}
	}
	for _, t := range all {
		if t.QualifiedName == name {
			return t, nil
		}
	}
	for _, sp := range servers {
		if m.deniedMatch(sp, name) {
			return ToolDescriptor{}, fmt.Errorf("%w: %s", ErrToolDenied, name)
		}
	}
	return ToolDescriptor{}, &ToolNotFoundError{Name: name, Suggestions: suggest(name, all, m.maxSuggestions)}
}

// deniedMatch reports whether name refers to one of sp's tools that the
// policy hides.
func (m *Manager) deniedMatch(sp *ServerProcess, name string) bool {
	for _, t := range sp.Tools() {
		q := QualifiedName(sp.Name(), t.Name)
		if (t.Name == name || q == name) && m.policy.Evaluate(q) == Deny {
			return true
		}
	}
	return false
}

// Call resolves toolName and dispatches tools/call to its server. Server
// errors and timeouts are returned unchanged.
func (m *Manager) Call(ctx context.Context, toolName string, args map[string]any) (*CallResult, error) {
	t, err := m.Resolve(toolName)
	if err != nil {
		m.logger.Debug("tool resolution failed", "tool", toolName, "error", err)
		return nil, err
	}
	return m.CallTool(ctx, t, args)
}

// CallTool dispatches to an already resolved tool.
func (m *Manager) CallTool(ctx context.Context, t ToolDescriptor, args map[string]any) (*CallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	m.logger.Debug("calling tool", "tool", t.QualifiedName)

	raw, err := m.source.SendRequest(ctx, t.Server, MethodToolsCall, toolsCallParams{Name: t.Name, Arguments: args})
	if err != nil {
		return nil, err
	}
	res := &CallResult{Raw: raw}
	if err := json.Unmarshal(raw, res); err != nil {
		// Servers that return a bare value still get it through Raw.
		res.Content = []ContentBlock{{Type: "text", Text: string(raw)}}
	}
	return res, nil
}

// ListResources returns every resource offered by connected servers, keyed
// by server name.
func (m *Manager) ListResources() map[string][]Resource {
	out := make(map[string][]Resource)
	for _, sp := range m.source.Servers() {
		if rs := sp.Resources(); len(rs) > 0 {
			out[sp.Name()] = rs
		}
	}
	return out
}

// ReadResource fetches one resource through resources/read.
func (m *Manager) ReadResource(ctx context.Context, server, uri string) ([]ResourceContent, error) {
	raw, err := m.source.SendRequest(ctx, server, MethodResourcesRead, resourcesReadParams{URI: uri})
	if err != nil {
		return nil, err
	}
	var res resourcesReadResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("mcp: decoding resources/read from %s: %w", server, err)
	}
	return res.Contents, nil
}

// ListPrompts returns every prompt offered by connected servers, keyed by
// server name.
func (m *Manager) ListPrompts() map[string][]Prompt {
	out := make(map[string][]Prompt)
	for _, sp := range m.source.Servers() {
		if ps := sp.Prompts(); len(ps) > 0 {
			out[sp.Name()] = ps
		}
	}
	return out
}

// suggest returns up to limit qualified names near name: substring matches
// in either direction first, then fuzzy matches.
func suggest(name string, tools []ToolDescriptor, limit int) []string {
	if name == "" || limit <= 0 {
		return nil
	}
	needle := strings.ToLower(name)

	seen := make(map[string]bool)
	var out []string
	add := func(q string) bool {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
		return len(out) >= limit
	}

	for _, t := range tools {
		short := strings.ToLower(t.Name)
		q := strings.ToLower(t.QualifiedName)
		if strings.Contains(short, needle) || strings.Contains(needle, short) || strings.Contains(q, needle) {
			if add(t.QualifiedName) {
				return out
			}
		}
	}

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.QualifiedName
	}
	for _, match := range fuzzy.Find(name, names) {
		if add(match.Str) {
			return out
		}
	}
	return out
}
