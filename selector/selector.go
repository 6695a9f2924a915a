// Package selector picks which tool to call for a question and with what
// query. A completion model makes the choice; whenever its reply is
// unusable a deterministic heuristic takes over, so selection never fails
// because of model output.
package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/internal/schema"
	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
)

var (
	// ErrNoCandidates is returned when there is no tool to choose from.
	ErrNoCandidates = errors.New("selector: no candidate tools")

	// ErrNoData is returned by Run when every attempt came back empty.
	ErrNoData = errors.New("selector: no data")
)

// Source records who made a selection.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// Selection is the chosen tool and its arguments.
type Selection struct {
	Tool       mcp.ToolDescriptor
	Arguments  map[string]any
	Query      string
	RetryQuery string
	Reasoning  string
	Source     Source
}

// SelectedTool returns the chosen tool's name.
func (s Selection) SelectedTool() string { return s.Tool.Name }

// reply is the JSON contract the model must answer with.
type reply struct {
	SelectedTool string `json:"selectedTool" jsonschema:"required,description=Exact name of one listed tool"`
	Query        string `json:"query" jsonschema:"required,description=Short keyword query passed to the tool"`
	Reasoning    string `json:"reasoning,omitempty" jsonschema:"description=One sentence on why this tool fits"`
	RetryQuery   string `json:"retryQuery,omitempty" jsonschema:"description=Broader query to try if the first returns nothing"`
}

const (
	defaultTemperature  = 0.1
	defaultMaxTokens    = 300
	defaultEmptyRetries = 1
)

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// WithTemperature overrides the sampling temperature. Defaults to 0.1.
func WithTemperature(t float64) Option {
	return func(s *Selector) { s.temperature = t }
}

// WithMaxTokens caps the model reply length.
func WithMaxTokens(n int) Option {
	return func(s *Selector) { s.maxTokens = n }
}

// WithEmptyRetries sets how many times Run retries a search-style tool
// whose result was empty. Defaults to 1.
func WithEmptyRetries(n int) Option {
	return func(s *Selector) { s.emptyRetries = n }
}

// Selector chooses tools. A nil completer leaves only the heuristic.
type Selector struct {
	completer    llm.Completer
	logger       *slog.Logger
	temperature  float64
	maxTokens    int
	emptyRetries int
	contract     string
}

// New creates a Selector.
func New(c llm.Completer, opts ...Option) *Selector {
	s := &Selector{
		completer:    c,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
		emptyRetries: defaultEmptyRetries,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.emptyRetries < 0 {
		s.emptyRetries = 0
	}
	s.logger = s.logger.With("component", "selector")
	if raw, err := schema.GenerateJSON[reply](); err == nil {
		s.contract = string(raw)
	}
	return s
}

// Select chooses one of candidates for question. It only fails when
// candidates is empty.
func (s *Selector) Select(ctx context.Context, question, service string, candidates []mcp.ToolDescriptor) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}
	if s.completer != nil {
		sel, err := s.ask(ctx, question, service, candidates)
		if err == nil {
			return sel, nil
		}
		s.logger.Debug("model selection unusable, using heuristic", "service", service, "error", err)
	}
	return s.heuristic(question, service, candidates), nil
}

func (s *Selector) heuristic(question, service string, candidates []mcp.ToolDescriptor) Selection {
	tool := heuristicTool(candidates)
	q := ExtractQuery(question, service)
	return Selection{
		Tool:      tool,
		Arguments: Arguments(tool, q),
		Query:     q,
		Reasoning: "heuristic: prefers search-style tools",
		Source:    SourceHeuristic,
	}
}

func (s *Selector) ask(ctx context.Context, question, service string, candidates []mcp.ToolDescriptor) (Selection, error) {
	resp, err := s.completer.Complete(ctx, llm.Request{
		System:      s.prompt(service, candidates),
		Messages:    []llm.Message{llm.UserText(question)},
		MaxTokens:   s.maxTokens,
		Temperature: llm.Temperature(s.temperature),
	})
	if err != nil {
		return Selection{}, err
	}
	r, err := parseReply(resp.Text)
	if err != nil {
		return Selection{}, err
	}
	tool, ok := lookup(candidates, r.SelectedTool)
	if !ok {
		return Selection{}, fmt.Errorf("selector: model chose unknown tool %q", r.SelectedTool)
	}
	q := strings.TrimSpace(r.Query)
	if q == "" {
		q = ExtractQuery(question, service)
	}
	return Selection{
		Tool:       tool,
		Arguments:  Arguments(tool, q),
		Query:      q,
		RetryQuery: strings.TrimSpace(r.RetryQuery),
		Reasoning:  r.Reasoning,
		Source:     SourceModel,
	}, nil
}

func (s *Selector) prompt(service string, candidates []mcp.ToolDescriptor) string {
	id, _ := auth.Canonical(service)
	var sb strings.Builder
	fmt.Fprintf(&sb, "You choose the single best tool to answer the user's question from their %s data.\n\n", id.DisplayName())
	sb.WriteString("Available tools:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, Describe(c))
	}
	sb.WriteString("\nReply with a single JSON object and nothing else. It must match this JSON Schema:\n")
	sb.WriteString(s.contract)
	sb.WriteString("\n\nKeep query to a few keywords. Suggest a broader retryQuery in case the first search finds nothing.")
	return sb.String()
}

// parseReply decodes the model's JSON, tolerating code fences and
// surrounding prose.
func parseReply(text string) (reply, error) {
	var r reply
	body := stripFences(text)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return reply{}, fmt.Errorf("selector: parse reply: %w", err)
	}
	if strings.TrimSpace(r.SelectedTool) == "" {
		return reply{}, errors.New("selector: reply names no tool")
	}
	return r, nil
}

func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSpace(t)
	return strings.TrimSpace(strings.TrimSuffix(t, "```"))
}

func lookup(candidates []mcp.ToolDescriptor, name string) (mcp.ToolDescriptor, bool) {
	name = strings.TrimSpace(name)
	for _, c := range candidates {
		if c.Name == name || c.QualifiedName == name {
			return c, true
		}
	}
	return mcp.ToolDescriptor{}, false
}
