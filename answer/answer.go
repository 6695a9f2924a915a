// Package answer turns a categorized question into a finished answer. It
// picks a strategy, fetches service data through the tool selector when the
// strategy needs it, asks the completion model, and cleans up the reply.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
	"github.com/armatrix/toolhost/selector"
)

// ErrGeneration wraps completion failures, the only errors Answer returns.
var ErrGeneration = errors.New("answer: generation failed")

// Services is the authorization tracker surface the orchestrator uses.
type Services interface {
	Refresh(ctx context.Context, id auth.ServiceID) (auth.Status, error)
	EnsureRunning(ctx context.Context, id auth.ServiceID) (*mcp.ServerProcess, auth.Status, error)
}

// Catalog is the tool router surface the orchestrator uses.
type Catalog interface {
	ToolsForServer(name string) []mcp.ToolDescriptor
	CallTool(ctx context.Context, t mcp.ToolDescriptor, args map[string]any) (*mcp.CallResult, error)
}

// ToolRunner selects and runs a tool for a question.
type ToolRunner interface {
	Run(ctx context.Context, question, service string, candidates []mcp.ToolDescriptor, invoke selector.Invoker) (*selector.Outcome, error)
}

var (
	_ Services   = (*auth.Tracker)(nil)
	_ Catalog    = (*mcp.Manager)(nil)
	_ ToolRunner = (*selector.Selector)(nil)
)

// Question is one input to the orchestrator.
type Question struct {
	Text     string
	Category Category

	// Image is an optional screenshot sent alongside the question.
	Image *llm.Image
}

// Answer is the orchestrator's output.
type Answer struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Category Category `json:"category"`
	Text     string   `json:"text"`

	// Service and Tool are set when service data was consulted.
	Service auth.ServiceID `json:"service,omitempty"`
	Tool    string         `json:"tool,omitempty"`

	// Notice explains why service data is missing from the answer.
	Notice string `json:"notice,omitempty"`

	// Guidance is true when Text is a setup message rather than a
	// generated answer.
	Guidance bool `json:"guidance,omitempty"`

	Usage    llm.Usage     `json:"usage"`
	Duration time.Duration `json:"duration"`
}

const (
	defaultBatchLimit = 4
	defaultMaxRecords = 20
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithServices sets the authorization tracker.
func WithServices(s Services) Option {
	return func(o *Orchestrator) { o.services = s }
}

// WithCatalog sets the tool router.
func WithCatalog(c Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithToolRunner replaces the default selector.
func WithToolRunner(r ToolRunner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithStrategy adds or replaces the strategy for s.Category.
func WithStrategy(s Strategy) Option {
	return func(o *Orchestrator) { o.strategies[s.Category] = s }
}

// WithBatchLimit caps concurrent answers in AnswerBatch.
func WithBatchLimit(n int) Option {
	return func(o *Orchestrator) { o.batchLimit = n }
}

// WithMaxRecords caps how many records of a tool result are injected.
func WithMaxRecords(n int) Option {
	return func(o *Orchestrator) { o.maxRecords = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator answers questions.
type Orchestrator struct {
	completer  llm.Completer
	services   Services
	catalog    Catalog
	runner     ToolRunner
	strategies map[Category]Strategy
	batchLimit int
	maxRecords int
	logger     *slog.Logger
}

// New creates an Orchestrator. Without WithCatalog every tool-backed
// category answers with a retrieval notice.
func New(c llm.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		completer:  c,
		strategies: DefaultStrategies(),
		batchLimit: defaultBatchLimit,
		maxRecords: defaultMaxRecords,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.runner == nil {
		o.runner = selector.New(c, selector.WithLogger(o.logger))
	}
	o.logger = o.logger.With("component", "answer")
	if o.batchLimit <= 0 {
		o.batchLimit = defaultBatchLimit
	}
	return o
}

// Strategy returns the strategy used for c, falling back to general.
func (o *Orchestrator) Strategy(c Category) Strategy {
	if s, ok := o.strategies[c]; ok {
		return s
	}
	return o.strategies[CategoryGeneral]
}

// Answer processes one question. Tool and authorization problems become
// part of the answer; only a failed completion returns an error.
func (o *Orchestrator) Answer(ctx context.Context, q Question) (*Answer, error) {
	start := time.Now()
	strat := o.Strategy(q.Category)
	ans := &Answer{
		ID:       uuid.NewString(),
		Question: q.Text,
		Category: strat.Category,
	}
	log := o.logger.With("answer_id", ans.ID, "category", strat.Category)

	var retrieved string
	if strat.RequiresTools {
		ans.Service = strat.Service
		ready, guidance := o.ensureService(ctx, strat.Service, log)
		if guidance != "" {
			ans.Text, ans.Guidance = guidance, true
			ans.Duration = time.Since(start)
			return ans, nil
		}
		if ready {
			retrieved, ans.Tool, ans.Notice = o.retrieve(ctx, q.Text, strat.Service, log)
		} else {
			ans.Notice = fmt.Sprintf("Unable to start the %s connector, so this answer does not include your %s data.",
				strat.Service.DisplayName(), strat.Service.DisplayName())
		}
	}

	if o.completer == nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, llm.ErrNoCompleter)
	}
	resp, err := o.completer.Complete(ctx, llm.Request{
		System:      strat.SystemPrompt,
		Messages:    []llm.Message{buildMessage(q, strat, retrieved, ans.Notice)},
		MaxTokens:   strat.MaxTokens,
		Temperature: llm.Temperature(strat.Temperature),
	})
	if err != nil {
		log.Warn("completion failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	ans.Text = Postprocess(resp.Text, strat.Style)
	ans.Usage = resp.Usage
	ans.Duration = time.Since(start)
	log.Debug("answered", "tool", ans.Tool, "duration", ans.Duration)
	return ans, nil
}

// ensureService reports whether the service's server is running, starting
// it once when it is authenticated but idle. A non-empty guidance string
// means the user has to act first. Without a tracker the catalog is
// trusted as is.
func (o *Orchestrator) ensureService(ctx context.Context, id auth.ServiceID, log *slog.Logger) (ready bool, guidance string) {
	if o.services == nil {
		return true, ""
	}
	// Credentials may have arrived since the tracker last looked.
	st, err := o.services.Refresh(ctx, id)
	if err != nil {
		return false, unconfiguredGuidance(id)
	}
	switch st.State {
	case auth.StateRunning:
		return true, ""
	case auth.StateAuthenticatedIdle:
		_, st, err = o.services.EnsureRunning(ctx, id)
		if err == nil {
			return true, ""
		}
		log.Warn("on-demand start failed", "service", id, "state", st.State, "error", err)
		if st.State == auth.StatePendingAuth {
			return false, pendingAuthGuidance(id)
		}
		if st.State == auth.StateUnconfigured {
			return false, unconfiguredGuidance(id)
		}
		return false, ""
	case auth.StatePendingAuth:
		return false, pendingAuthGuidance(id)
	default:
		return false, unconfiguredGuidance(id)
	}
}

func pendingAuthGuidance(id auth.ServiceID) string {
	return fmt.Sprintf("%s needs authorization before I can use it. Sign in to %s from the connections settings, then ask again.",
		id.DisplayName(), id.DisplayName())
}

func unconfiguredGuidance(id auth.ServiceID) string {
	return fmt.Sprintf("%s is not connected. Add %s in the connections settings to let me answer questions about it.",
		id.DisplayName(), id.DisplayName())
}

// retrieve runs the selector against the service's tools and formats the
// result. Failures come back as a notice.
func (o *Orchestrator) retrieve(ctx context.Context, question string, id auth.ServiceID, log *slog.Logger) (text, tool, notice string) {
	unable := fmt.Sprintf("Unable to retrieve data from %s.", id.DisplayName())
	if o.catalog == nil {
		return "", "", unable
	}
	candidates := o.catalog.ToolsForServer(string(id))
	if len(candidates) == 0 {
		return "", "", unable
	}

	out, err := o.runner.Run(ctx, question, string(id), candidates, o.catalog.CallTool)
	if out != nil {
		tool = out.Selection.Tool.QualifiedName
	}
	switch {
	case errors.Is(err, selector.ErrNoData):
		return "", tool, fmt.Sprintf("No matching %s data was found.", id.DisplayName())
	case err != nil:
		log.Warn("tool retrieval failed", "service", id, "tool", tool, "error", err)
		return "", tool, unable
	case out.Result.IsError:
		log.Warn("tool reported an error", "service", id, "tool", tool, "result", out.Result.Text())
		return "", tool, unable
	}
	return FormatResult(out.Result, o.maxRecords), tool, ""
}

func buildMessage(q Question, strat Strategy, retrieved, notice string) llm.Message {
	var sb strings.Builder
	if strat.RequiresTools {
		name := strat.Service.DisplayName()
		switch {
		case retrieved != "":
			fmt.Fprintf(&sb, "Retrieved from %s:\n%s\n\n", name, retrieved)
		case notice != "":
			fmt.Fprintf(&sb, "Note: %s\n\n", notice)
		}
		sb.WriteString("Question: ")
	}
	sb.WriteString(q.Text)
	return llm.Message{Role: llm.RoleUser, Text: sb.String(), Image: q.Image}
}

// AnswerBatch answers questions concurrently, at most WithBatchLimit at a
// time. Results keep the input order; failed entries are nil and their
// errors are joined.
func (o *Orchestrator) AnswerBatch(ctx context.Context, questions []Question) ([]*Answer, error) {
	answers := make([]*Answer, len(questions))
	errs := make([]error, len(questions))

	var g errgroup.Group
	g.SetLimit(o.batchLimit)
	for i, q := range questions {
		g.Go(func() error {
			answers[i], errs[i] = o.Answer(ctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return answers, errors.Join(errs...)
}
