package toolhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/armatrix/toolhost/answer"
	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/internal/config"
	"github.com/armatrix/toolhost/internal/hookrunner"
	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
	"github.com/armatrix/toolhost/plugin"
	"github.com/armatrix/toolhost/selector"
	"github.com/armatrix/toolhost/session"
)

// Host owns the tool servers, their authorization state and the answer
// pipeline built on top of them. A Host is safe for concurrent use.
type Host struct {
	supervisor *mcp.Supervisor
	manager    *mcp.Manager
	tracker    *auth.Tracker
	completer  llm.Completer
	selector   *selector.Selector
	answers    *answer.Orchestrator
	hooks      *hookrunner.Runner
	logger     *slog.Logger

	mu        sync.Mutex
	listeners map[int]func(Event)
	nextLis   int

	store   session.Store
	sessMu  sync.Mutex
	session *session.Session

	removeServerListener func()
	closed               atomic.Bool
	closeOnce            sync.Once
	closeErr             error
}

var _ answer.Catalog = (*Host)(nil)

// New creates a Host. Settings files named by WithSettingSources are
// loaded and validated first; explicit options override them.
func New(opts ...Option) (*Host, error) {
	o := resolveOptions(opts)

	if len(o.settingSources) > 0 {
		settings, err := config.LoadSettings(o.settingSources...)
		if err != nil {
			return nil, err
		}
		if err := settings.Validate(); err != nil {
			return nil, err
		}
		if err := applySettings(&o, settings); err != nil {
			return nil, err
		}
	}
	plugins, err := plugin.LoadPlugins(o.pluginDirs...)
	if err != nil {
		return nil, err
	}
	pluginServices, pluginPolicy, prompts := plugin.Merge(plugins)
	o.services = slices.Concat(pluginServices, o.services)
	o.policy = slices.Concat(pluginPolicy, o.policy)
	o.applyDefaults()

	if o.sessionID != "" && o.sessionStore == nil {
		return nil, fmt.Errorf("%w: session id without a session store", mcp.ErrInvalidConfig)
	}
	policy := mcp.Policy{Rules: o.policy}
	if err := policy.Valid(); err != nil {
		return nil, err
	}
	hooks, err := hookrunner.New(o.hooks)
	if err != nil {
		return nil, err
	}
	overrides, err := config.LoadPrompts(o.promptDirs...)
	if err != nil {
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	maps.Copy(prompts, overrides)

	h := &Host{
		hooks:     hooks,
		logger:    o.logger.With("component", "host"),
		listeners: make(map[int]func(Event)),
		store:     o.sessionStore,
	}
	if h.store != nil {
		if o.sessionID != "" {
			h.session, err = h.store.Load(context.Background(), o.sessionID)
			if err != nil {
				return nil, err
			}
		} else {
			h.session = session.New()
		}
	}

	supOpts := []mcp.SupervisorOption{
		mcp.WithLogger(o.logger),
		mcp.WithRequestTimeout(o.requestTimeout),
		mcp.WithHandshakeTimeout(o.handshakeTimeout),
		mcp.WithShutdownGrace(o.shutdownGrace),
	}
	if o.spawner != nil {
		supOpts = append(supOpts, mcp.WithSpawner(o.spawner))
	}
	h.supervisor = mcp.NewSupervisor(supOpts...)
	h.removeServerListener = h.supervisor.AddListener(h.onServerEvent)

	h.manager = mcp.NewManager(h.supervisor,
		mcp.WithPolicy(policy),
		mcp.WithMaxSuggestions(o.maxSuggestions),
		mcp.WithManagerLogger(o.logger),
	)
	h.tracker = auth.NewTracker(o.credentials, h.supervisor,
		auth.WithLogger(o.logger),
		auth.WithOnChange(h.onStatusChange),
	)

	h.completer = newCompleter(&o)
	h.selector = selector.New(h.completer,
		selector.WithLogger(o.logger),
		selector.WithEmptyRetries(*o.emptyRetries),
	)

	answerOpts := []answer.Option{
		answer.WithServices(h.tracker),
		answer.WithCatalog(h),
		answer.WithToolRunner(h.selector),
		answer.WithLogger(o.logger),
	}
	if o.batchLimit > 0 {
		answerOpts = append(answerOpts, answer.WithBatchLimit(o.batchLimit))
	}
	if o.maxRecords > 0 {
		answerOpts = append(answerOpts, answer.WithMaxRecords(o.maxRecords))
	}
	for _, s := range strategies(prompts, o.strategies) {
		answerOpts = append(answerOpts, answer.WithStrategy(s))
	}
	h.answers = answer.New(h.completer, answerOpts...)

	for _, svc := range o.services {
		if err := h.tracker.Register(svc); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	// Services start unconfigured until evaluated against the credentials.
	for _, svc := range h.tracker.Services() {
		if _, err := h.tracker.Refresh(context.Background(), svc.ID); err != nil {
			h.logger.Warn("initial service refresh failed", "service", svc.ID, "error", err)
		}
	}

	h.logger.Debug("host ready", "services", len(o.services), "model", o.model,
		"hooks", hooks.Len(), "plugins", len(plugins))
	return h, nil
}

// newCompleter returns the configured completer or an Anthropic one.
func newCompleter(o *hostOptions) llm.Completer {
	if o.completer != nil {
		return o.completer
	}
	client := anthropic.NewClient(o.clientOptions...)
	opts := []llm.AnthropicOption{
		llm.WithModel(o.model),
		llm.WithLogger(o.logger),
	}
	if o.fallbackModel != "" {
		opts = append(opts, llm.WithFallbackModel(o.fallbackModel))
	}
	if !o.maxBudget.IsZero() {
		opts = append(opts, llm.WithSpendLimit(o.maxBudget))
	}
	return llm.NewAnthropic(llm.NewMessageStreamer(&client.Messages), opts...)
}

// strategies turns prompt overrides into strategies. Explicit strategies
// come last so they win.
func strategies(prompts map[string]string, explicit []answer.Strategy) []answer.Strategy {
	defaults := answer.DefaultStrategies()
	out := make([]answer.Strategy, 0, len(prompts)+len(explicit))
	for _, name := range slices.Sorted(maps.Keys(prompts)) {
		c := answer.Category(name)
		s, ok := defaults[c]
		if !ok {
			s = defaults[answer.CategoryGeneral]
			s.Category = c
		}
		s.SystemPrompt = prompts[name]
		out = append(out, s)
	}
	return append(out, explicit...)
}

// Supervisor returns the process supervisor.
func (h *Host) Supervisor() *mcp.Supervisor { return h.supervisor }

// Manager returns the tool router.
func (h *Host) Manager() *mcp.Manager { return h.manager }

// Tracker returns the authorization tracker.
func (h *Host) Tracker() *auth.Tracker { return h.tracker }

// Orchestrator returns the answer orchestrator.
func (h *Host) Orchestrator() *answer.Orchestrator { return h.answers }

// Spend reports cumulative completion cost when the completer tracks it.
func (h *Host) Spend() (decimal.Decimal, bool) {
	if a, ok := h.completer.(*llm.Anthropic); ok {
		return a.Spend(), true
	}
	return decimal.Zero, false
}

// --- Services ---

// Services re-evaluates every registered service and returns its status in
// registration order.
func (h *Host) Services(ctx context.Context) ([]auth.Status, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	var errs []error
	for _, svc := range h.tracker.Services() {
		if _, err := h.tracker.Refresh(ctx, svc.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return h.tracker.States(), errors.Join(errs...)
}

// Connect starts the service's tool server when it is authorized. The
// returned status reflects the outcome.
func (h *Host) Connect(ctx context.Context, id auth.ServiceID) (auth.Status, error) {
	if h.closed.Load() {
		return auth.Status{}, ErrClosed
	}
	_, st, err := h.tracker.EnsureRunning(ctx, id)
	return st, err
}

// ConnectAll starts every authorized service concurrently. Services that
// are not authorized are reported through their status only; other start
// failures are joined into the error.
func (h *Host) ConnectAll(ctx context.Context) ([]auth.Status, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	services := h.tracker.Services()
	statuses := make([]auth.Status, len(services))
	errs := make([]error, len(services))

	var g errgroup.Group
	for i, svc := range services {
		g.Go(func() error {
			st, err := h.Connect(ctx, svc.ID)
			statuses[i] = st
			if err != nil && !errors.Is(err, auth.ErrNotAuthorized) {
				errs[i] = fmt.Errorf("service %s: %w", svc.ID, err)
				h.logger.Warn("service failed to start", "service", svc.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return statuses, errors.Join(errs...)
}

// Disconnect removes the service's credentials and stops its server.
func (h *Host) Disconnect(ctx context.Context, id auth.ServiceID) error {
	return h.tracker.Disconnect(ctx, id)
}

// AuthorizationCompleted tells the Host that the OAuth flow of id finished.
// It never blocks.
func (h *Host) AuthorizationCompleted(id auth.ServiceID) {
	h.tracker.AuthorizationCompleted(id)
}

// --- Tools ---

// Tools returns the unified catalog of every live server.
func (h *Host) Tools() []mcp.ToolDescriptor { return h.manager.AllTools() }

// ToolsForServer returns the catalog entries of one server.
func (h *Host) ToolsForServer(name string) []mcp.ToolDescriptor {
	return h.manager.ToolsForServer(name)
}

// Call resolves name (short or server.tool) and calls it.
func (h *Host) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallResult, error) {
	t, err := h.manager.Resolve(name)
	if err != nil {
		return nil, err
	}
	return h.CallTool(ctx, t, args)
}

// CallTool calls a resolved tool through the hook chain. A PreToolCall hook
// may block the call or rewrite its arguments. Errors from post-call hooks
// are logged and do not change the result.
func (h *Host) CallTool(ctx context.Context, t mcp.ToolDescriptor, args map[string]any) (*mcp.CallResult, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	args, err := h.hooks.RunPre(ctx, t, args)
	if err != nil {
		h.logger.Info("tool call stopped by hook", "tool", t.QualifiedName, "error", err)
		return nil, err
	}

	res, err := h.manager.CallTool(ctx, t, args)
	if err != nil {
		if herr := h.hooks.RunFailure(ctx, t, args, err); herr != nil {
			h.logger.Warn("failure hook error", "tool", t.QualifiedName, "error", herr)
		}
		return nil, err
	}
	if herr := h.hooks.RunPost(ctx, t, args, res); herr != nil {
		h.logger.Warn("post-call hook error", "tool", t.QualifiedName, "error", herr)
	}
	return res, nil
}

// --- Answers ---

// Ask answers one question.
func (h *Host) Ask(ctx context.Context, q answer.Question) (*answer.Answer, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	a, err := h.answers.Answer(ctx, q)
	if err != nil {
		return nil, err
	}
	h.record(ctx, a)
	return a, nil
}

// AskBatch answers questions concurrently; see answer.Orchestrator.AnswerBatch.
func (h *Host) AskBatch(ctx context.Context, questions []answer.Question) ([]*answer.Answer, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}
	answers, err := h.answers.AnswerBatch(ctx, questions)
	h.record(ctx, answers...)
	return answers, err
}

// Session returns a copy of the current session, or nil when no session
// store is configured.
func (h *Host) Session() *session.Session {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	if h.session == nil {
		return nil
	}
	return h.session.Copy()
}

// record appends answers to the session and saves it. Save failures are
// logged; the answers are still returned to the caller.
func (h *Host) record(ctx context.Context, answers ...*answer.Answer) {
	if h.store == nil || len(answers) == 0 {
		return
	}
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	h.session.Append(answers...)
	if err := h.store.Save(ctx, h.session); err != nil {
		h.logger.Warn("saving session failed", "session", h.session.ID, "error", err)
	}
}

// --- Events ---

// Subscribe registers fn for server and service events and returns a
// function that removes it. fn may run on internal goroutines and must not
// block.
func (h *Host) Subscribe(fn func(Event)) (remove func()) {
	h.mu.Lock()
	id := h.nextLis
	h.nextLis++
	h.listeners[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *Host) emit(ev Event) {
	h.mu.Lock()
	fns := slices.Collect(maps.Values(h.listeners))
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *Host) onServerEvent(ev mcp.Event) {
	h.emit(&ServerEvent{Kind: ev.Type, Server: ev.Server, Err: ev.Err, Notification: ev.Notification})
}

func (h *Host) onStatusChange(st auth.Status) {
	h.emit(&ServiceEvent{Status: st})
}

// Close stops every tool server and releases the Host. It is safe to call
// more than once.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.tracker.Close()
		h.closeErr = h.supervisor.Close()
		h.removeServerListener()
	})
	return h.closeErr
}
