package toolhost

import (
	"log/slog"
	"slices"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/shopspring/decimal"

	"github.com/armatrix/toolhost/answer"
	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/hook"
	"github.com/armatrix/toolhost/internal/config"
	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
	"github.com/armatrix/toolhost/session"
)

// Option configures a Host via the functional options pattern.
type Option func(*hostOptions)

// hostOptions holds all configurable fields set via Option functions.
type hostOptions struct {
	logger *slog.Logger

	// Supervisor
	spawner          mcp.Spawner
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	shutdownGrace    time.Duration

	// Router
	policy         []mcp.Rule
	maxSuggestions int
	hooks          []hook.Matcher

	// Authorization
	credentials auth.Credentials
	services    []auth.Service

	// Completion
	completer     llm.Completer
	clientOptions []option.RequestOption
	model         anthropic.Model
	fallbackModel anthropic.Model
	maxBudget     decimal.Decimal

	// Answering
	emptyRetries *int
	batchLimit   int
	maxRecords   int
	strategies   []answer.Strategy
	promptDirs   []string
	pluginDirs   []string

	// History
	sessionStore session.Store
	sessionID    string

	settingSources []string
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *hostOptions) applyDefaults() {
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.credentials == nil {
		o.credentials = auth.NewMemoryCredentials()
	}
	if o.model == "" {
		o.model = DefaultModel
	}
	if o.requestTimeout == 0 {
		o.requestTimeout = DefaultRequestTimeout
	}
	if o.handshakeTimeout == 0 {
		o.handshakeTimeout = DefaultHandshakeTimeout
	}
	if o.shutdownGrace == 0 {
		o.shutdownGrace = DefaultShutdownGrace
	}
	if o.emptyRetries == nil {
		n := DefaultEmptyRetries
		o.emptyRetries = &n
	}
}

// resolveOptions applies all option functions. Defaults are filled after
// settings files are merged.
func resolveOptions(opts []Option) hostOptions {
	var o hostOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// applySettings merges loaded settings into resolved options. Options set
// explicitly via WithXxx take precedence over settings files; list-valued
// settings are combined with explicit ones.
func applySettings(o *hostOptions, s *config.Settings) error {
	if o.model == "" && s.Model != "" {
		o.model = anthropic.Model(s.Model)
	}
	if o.fallbackModel == "" && s.FallbackModel != "" {
		o.fallbackModel = anthropic.Model(s.FallbackModel)
	}
	if o.maxBudget.IsZero() && s.MaxBudgetUSD > 0 {
		o.maxBudget = decimal.NewFromFloat(s.MaxBudgetUSD)
	}
	if o.requestTimeout == 0 {
		o.requestTimeout = s.RequestTimeout.Std()
	}
	if o.handshakeTimeout == 0 {
		o.handshakeTimeout = s.HandshakeTimeout.Std()
	}
	if o.shutdownGrace == 0 {
		o.shutdownGrace = s.ShutdownGrace.Std()
	}
	if o.emptyRetries == nil && s.EmptyRetries != nil {
		n := *s.EmptyRetries
		o.emptyRetries = &n
	}
	if o.maxSuggestions == 0 {
		o.maxSuggestions = s.MaxSuggestions
	}
	if o.batchLimit == 0 {
		o.batchLimit = s.BatchLimit
	}

	services, err := s.EnabledServices()
	if err != nil {
		return err
	}
	// Explicit services are registered last so they replace configured ones.
	o.services = slices.Concat(services, o.services)
	o.policy = slices.Concat(s.Policy, o.policy)
	o.promptDirs = slices.Concat(s.PromptDirs, o.promptDirs)
	o.pluginDirs = slices.Concat(s.PluginDirs, o.pluginDirs)
	if o.sessionStore == nil && s.SessionDir != "" {
		store, err := session.NewFileStore(s.SessionDir)
		if err != nil {
			return err
		}
		o.sessionStore = store
	}
	return nil
}

// DefaultSettingsPaths returns the standard settings search paths for a
// project: user, then project, then project-local.
func DefaultSettingsPaths(projectDir string) []string {
	return config.DefaultSettingsPaths(projectDir)
}

// --- Settings ---

// WithSettingSources loads settings from the given files (JSON, JSONC or
// YAML by extension). Later files override earlier ones; explicit options
// override all of them.
func WithSettingSources(paths ...string) Option {
	return func(o *hostOptions) { o.settingSources = append(o.settingSources, paths...) }
}

// WithLogger sets the structured logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *hostOptions) { o.logger = l }
}

// --- Tool servers ---

// WithSpawner replaces the os/exec process spawner.
func WithSpawner(s mcp.Spawner) Option {
	return func(o *hostOptions) { o.spawner = s }
}

// WithRequestTimeout sets how long a tool server request may stay pending.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *hostOptions) { o.requestTimeout = d }
}

// WithHandshakeTimeout bounds the initialize round trip.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *hostOptions) { o.handshakeTimeout = d }
}

// WithShutdownGrace sets how long Stop waits before killing a server.
func WithShutdownGrace(d time.Duration) Option {
	return func(o *hostOptions) { o.shutdownGrace = d }
}

// WithPolicy adds tool policy rules.
func WithPolicy(rules ...mcp.Rule) Option {
	return func(o *hostOptions) { o.policy = append(o.policy, rules...) }
}

// WithMaxSuggestions caps the near matches reported for an unknown tool.
func WithMaxSuggestions(n int) Option {
	return func(o *hostOptions) { o.maxSuggestions = n }
}

// WithHooks adds tool call hooks. They fire for direct calls and for calls
// made while answering.
func WithHooks(matchers ...hook.Matcher) Option {
	return func(o *hostOptions) { o.hooks = append(o.hooks, matchers...) }
}

// --- Services ---

// WithCredentials sets the credential collaborator. Defaults to an empty
// in-memory store.
func WithCredentials(c auth.Credentials) Option {
	return func(o *hostOptions) { o.credentials = c }
}

// WithServices registers services in addition to configured ones. A
// service with a configured id replaces it.
func WithServices(services ...auth.Service) Option {
	return func(o *hostOptions) { o.services = append(o.services, services...) }
}

// --- Completion ---

// WithCompleter replaces the Anthropic completer.
func WithCompleter(c llm.Completer) Option {
	return func(o *hostOptions) { o.completer = c }
}

// WithClientOptions passes request options to the Anthropic client, e.g.
// option.WithAPIKey.
func WithClientOptions(opts ...option.RequestOption) Option {
	return func(o *hostOptions) { o.clientOptions = append(o.clientOptions, opts...) }
}

// WithModel sets the Claude model.
func WithModel(model anthropic.Model) Option {
	return func(o *hostOptions) { o.model = model }
}

// WithFallbackModel sets the model retried once when the primary is
// overloaded.
func WithFallbackModel(model anthropic.Model) Option {
	return func(o *hostOptions) { o.fallbackModel = model }
}

// WithBudget caps cumulative completion spend in USD. Zero means unlimited.
func WithBudget(maxUSD decimal.Decimal) Option {
	return func(o *hostOptions) { o.maxBudget = maxUSD }
}

// --- Answering ---

// WithEmptyRetries sets how often an empty search result is retried.
func WithEmptyRetries(n int) Option {
	return func(o *hostOptions) { o.emptyRetries = &n }
}

// WithBatchLimit caps concurrent answers in AskBatch.
func WithBatchLimit(n int) Option {
	return func(o *hostOptions) { o.batchLimit = n }
}

// WithMaxRecords caps the records of a tool result injected into a prompt.
func WithMaxRecords(n int) Option {
	return func(o *hostOptions) { o.maxRecords = n }
}

// WithStrategy adds or replaces the answer strategy for s.Category.
func WithStrategy(s answer.Strategy) Option {
	return func(o *hostOptions) { o.strategies = append(o.strategies, s) }
}

// WithPromptDirs loads <category>.md files that replace the system prompt
// of that category. Unknown categories get a plain strategy.
func WithPromptDirs(dirs ...string) Option {
	return func(o *hostOptions) { o.promptDirs = append(o.promptDirs, dirs...) }
}

// WithPluginDirs scans directories for service packs. Their services and
// policy rules come before configured ones; their prompts are overridden by
// WithPromptDirs.
func WithPluginDirs(dirs ...string) Option {
	return func(o *hostOptions) { o.pluginDirs = append(o.pluginDirs, dirs...) }
}

// --- History ---

// WithSessionStore records every answer in a session saved to store.
func WithSessionStore(store session.Store) Option {
	return func(o *hostOptions) { o.sessionStore = store }
}

// WithSessionID resumes an existing session instead of starting a new one.
// It requires a session store.
func WithSessionID(id string) Option {
	return func(o *hostOptions) { o.sessionID = id }
}
