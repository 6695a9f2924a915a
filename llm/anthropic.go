package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/shopspring/decimal"

	"github.com/armatrix/toolhost/internal/budget"
)

// ErrBudgetExhausted is returned once the configured spend limit is reached.
var ErrBudgetExhausted = budget.ErrExhausted

// DefaultModel is used when no model is configured.
const DefaultModel = anthropic.ModelClaudeHaiku4_5

const defaultMaxTokens = 1024

// MessageStreamer abstracts the Anthropic Messages API so completions can be
// tested against recorded event streams.
type MessageStreamer interface {
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

type messageServiceAdapter struct {
	svc *anthropic.MessageService
}

func (a *messageServiceAdapter) NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return a.svc.NewStreaming(ctx, params)
}

// NewMessageStreamer wraps a real anthropic.MessageService.
func NewMessageStreamer(svc *anthropic.MessageService) MessageStreamer {
	return &messageServiceAdapter{svc: svc}
}

// AnthropicOption configures an Anthropic completer.
type AnthropicOption func(*Anthropic)

// WithModel sets the model. Defaults to DefaultModel.
func WithModel(m anthropic.Model) AnthropicOption {
	return func(a *Anthropic) { a.model = m }
}

// WithFallbackModel sets a model retried once when the primary reports
// overload or unavailability.
func WithFallbackModel(m anthropic.Model) AnthropicOption {
	return func(a *Anthropic) { a.fallback = m }
}

// WithSpendLimit caps cumulative spend in USD. Zero means unlimited.
func WithSpendLimit(limit decimal.Decimal) AnthropicOption {
	return func(a *Anthropic) { a.limit = limit }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AnthropicOption {
	return func(a *Anthropic) { a.logger = l }
}

// Anthropic is a Completer backed by the streaming Messages API. The whole
// stream is consumed before Complete returns.
type Anthropic struct {
	streamer MessageStreamer
	model    anthropic.Model
	fallback anthropic.Model
	limit    decimal.Decimal
	budget   *budget.Tracker
	logger   *slog.Logger
}

var _ Completer = (*Anthropic)(nil)

// NewAnthropic creates a completer using streamer.
func NewAnthropic(streamer MessageStreamer, opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{streamer: streamer, model: DefaultModel}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	a.logger = a.logger.With("component", "llm.anthropic")
	a.budget = budget.NewTracker(a.limit, nil)
	return a
}

// Model returns the primary model.
func (a *Anthropic) Model() anthropic.Model { return a.model }

// Spend returns the cumulative cost in USD.
func (a *Anthropic) Spend() decimal.Decimal { return a.budget.Totals().Cost }

// TotalUsage returns the cumulative token usage.
func (a *Anthropic) TotalUsage() Usage {
	u := a.budget.Totals().Usage
	return Usage{InputTokens: u.TotalInput(), OutputTokens: u.OutputTokens}
}

// Complete sends req and collects the full response.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}
	if err := a.budget.Check(); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	params := a.params(req)
	msg, err := a.stream(ctx, params)
	if err != nil && a.fallback != "" && a.fallback != params.Model && isRetryableError(err) {
		a.logger.Warn("primary model unavailable, retrying with fallback",
			"model", params.Model, "fallback", a.fallback, "error", err)
		params.Model = a.fallback
		msg, err = a.stream(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: completion: %w", err)
	}

	cost := a.budget.Record(params.Model, budget.Usage{
		InputTokens:              int(msg.Usage.InputTokens),
		OutputTokens:             int(msg.Usage.OutputTokens),
		CacheReadInputTokens:     int(msg.Usage.CacheReadInputTokens),
		CacheCreationInputTokens: int(msg.Usage.CacheCreationInputTokens),
	})
	a.logger.Debug("completion done",
		"model", params.Model,
		"stop_reason", msg.StopReason,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
		"cost_usd", cost.String())

	return &Response{
		Text:       messageText(msg),
		Model:      string(params.Model),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (a *Anthropic) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toParam(m))
	}
	return params
}

func toParam(m Message) anthropic.MessageParam {
	var blocks []anthropic.ContentBlockParamUnion
	if m.Image != nil {
		blocks = append(blocks, anthropic.NewImageBlockBase64(m.Image.MediaType, base64.StdEncoding.EncodeToString(m.Image.Data)))
	}
	if m.Text != "" || len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(m.Text))
	}
	if m.Role == RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

func (a *Anthropic) stream(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error) {
	stream := a.streamer.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		if err := msg.Accumulate(stream.Current()); err != nil {
			return msg, fmt.Errorf("accumulate: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return msg, err
	}
	return msg, nil
}

func messageText(msg anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "model_unavailable") ||
		strings.Contains(msg, "529") ||
		strings.Contains(msg, "503")
}
