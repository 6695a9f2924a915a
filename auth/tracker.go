package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/armatrix/toolhost/mcp"
)

var (
	// ErrUnknownService is returned for ids that were never registered.
	ErrUnknownService = errors.New("auth: unknown service")

	// ErrNotAuthorized is returned when a service must be running or
	// authenticated for an operation and is not. Returned wrapped in a
	// *NotAuthorizedError.
	ErrNotAuthorized = errors.New("auth: service not authorized")
)

// NotAuthorizedError carries the state that blocked the operation.
type NotAuthorizedError struct {
	Service ServiceID
	State   State
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("auth: service %s not authorized (%s)", e.Service, e.State)
}

func (e *NotAuthorizedError) Unwrap() error { return ErrNotAuthorized }

// State is the observable authorization state of a service.
type State int

const (
	StateUnconfigured      State = iota // No credentials, nothing to do until the user configures the service
	StatePendingAuth                    // Client credentials present, token missing or expired
	StateAuthenticatedIdle              // Valid token, no server process
	StateRunning                        // Valid token and a live server process
)

func (s State) String() string {
	switch s {
	case StatePendingAuth:
		return "pending-auth"
	case StateAuthenticatedIdle:
		return "authenticated-idle"
	case StateRunning:
		return "running"
	default:
		return "unconfigured"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a point-in-time snapshot of one service.
type Status struct {
	Service              ServiceID `json:"service"`
	State                State     `json:"state"`
	HasClientCredentials bool      `json:"hasClientCredentials"`
	HasValidToken        bool      `json:"hasValidToken"`
	NeedsAuth            bool      `json:"needsAuth"`
	ServerRunning        bool      `json:"serverRunning"`
	LastError            string    `json:"lastError,omitempty"`
}

// Launcher is the part of the Supervisor the Tracker drives.
type Launcher interface {
	Start(ctx context.Context, name string, cfg mcp.ServerConfig) (*mcp.ServerProcess, error)
	Stop(name string) error
	Server(name string) (*mcp.ServerProcess, bool)
	AddListener(fn func(mcp.Event)) (remove func())
}

var _ Launcher = (*mcp.Supervisor)(nil)

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithOnChange registers fn to run after every state transition.
func WithOnChange(fn func(Status)) TrackerOption {
	return func(t *Tracker) { t.onChange = append(t.onChange, fn) }
}

type entry struct {
	svc          Service
	status       Status
	proc         *mcp.ServerProcess
	disconnected bool

	// epoch advances on every Disconnect so an in-flight Start can tell
	// that its authorization was withdrawn.
	epoch uint64
}

// Tracker owns the authorization state machine of every registered
// service and starts their tool servers through a Launcher once
// authorized.
type Tracker struct {
	creds    Credentials
	launcher Launcher
	logger   *slog.Logger
	onChange []func(Status)

	mu       sync.Mutex
	services map[ServiceID]*entry
	order    []ServiceID

	removeListener func()
}

// NewTracker creates a Tracker. It subscribes to launcher events so that
// server exits move running services back to authenticated-idle.
func NewTracker(creds Credentials, launcher Launcher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		creds:    creds,
		launcher: launcher,
		services: make(map[ServiceID]*entry),
	}
	for _, fn := range opts {
		fn(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	t.logger = t.logger.With("component", "auth.tracker")
	t.removeListener = launcher.AddListener(t.handleEvent)
	return t
}

// Close unsubscribes from launcher events. It does not stop servers.
func (t *Tracker) Close() {
	if t.removeListener != nil {
		t.removeListener()
	}
}

// Register adds or replaces a service. A service starts unconfigured until
// the first Refresh.
func (t *Tracker) Register(svc Service) error {
	if svc.ID == "" {
		return fmt.Errorf("%w: service id is required", mcp.ErrInvalidConfig)
	}
	if err := svc.Server.Validate(); err != nil {
		return fmt.Errorf("service %s: %w", svc.ID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.services[svc.ID]; !ok {
		t.order = append(t.order, svc.ID)
	}
	t.services[svc.ID] = &entry{svc: svc, status: Status{Service: svc.ID}}
	return nil
}

// Services returns the registered services in registration order.
func (t *Tracker) Services() []Service {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Service, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.services[id].svc)
	}
	return out
}

// Status returns the last computed status of id without consulting the
// credential collaborator.
func (t *Tracker) Status(id ServiceID) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.services[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	return e.status, nil
}

// States returns the status of every service in registration order.
func (t *Tracker) States() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Status, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.services[id].status)
	}
	return out
}

// Refresh re-evaluates id against the credential collaborator and the
// live server set. A running server whose token is no longer valid is
// stopped so that running never outlives the token.
func (t *Tracker) Refresh(ctx context.Context, id ServiceID) (Status, error) {
	st, _, err := t.refresh(ctx, id)
	return st, err
}

func (t *Tracker) refresh(ctx context.Context, id ServiceID) (Status, string, error) {
	t.mu.Lock()
	e, ok := t.services[id]
	if !ok {
		t.mu.Unlock()
		return Status{}, "", fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	svc := e.svc
	disconnected := e.disconnected
	t.mu.Unlock()

	var (
		hasClient bool
		token     string
		hasToken  bool
	)
	if svc.OAuth {
		hasClient = t.creds.HasClientCredentials(ctx, id)
		token, hasToken = t.creds.ValidAccessToken(ctx, id, svc.Scopes)
	} else if !disconnected {
		hasClient, hasToken = true, true
	}

	proc, running := t.launcher.Server(svc.ServerName())
	if running && !hasToken {
		t.logger.Warn("token no longer valid, stopping server", "service", id)
		if err := t.launcher.Stop(svc.ServerName()); err != nil && !errors.Is(err, mcp.ErrServerNotFound) {
			t.logger.Error("stopping unauthorized server failed", "service", id, "error", err)
		}
		proc, running = nil, false
	}

	st := Status{
		Service:              id,
		HasClientCredentials: hasClient,
		HasValidToken:        hasToken,
		NeedsAuth:            svc.OAuth && hasClient && !hasToken,
		ServerRunning:        running,
	}
	st.State = derive(st)

	t.mu.Lock()
	if cur, ok := t.services[id]; ok && cur == e {
		st.LastError = e.status.LastError
		e.proc = proc
		t.setStatusLocked(e, st)
	}
	t.mu.Unlock()
	return st, token, nil
}

func derive(st Status) State {
	switch {
	case st.ServerRunning && st.HasValidToken:
		return StateRunning
	case st.HasValidToken:
		return StateAuthenticatedIdle
	case st.HasClientCredentials:
		return StatePendingAuth
	default:
		return StateUnconfigured
	}
}

// setStatusLocked stores st and notifies listeners on a state change.
// Callers hold t.mu; listeners run in their own goroutine.
func (t *Tracker) setStatusLocked(e *entry, st Status) {
	prev := e.status.State
	e.status = st
	if prev == st.State {
		return
	}
	t.logger.Info("service state changed", "service", st.Service, "from", prev, "to", st.State)
	if len(t.onChange) == 0 {
		return
	}
	fns := slices.Clone(t.onChange)
	go func() {
		for _, fn := range fns {
			fn(st)
		}
	}()
}

// Start launches the service's tool server with the access token injected
// into its environment. Starting a running service returns its existing
// process. Services without a valid token fail with *NotAuthorizedError.
func (t *Tracker) Start(ctx context.Context, id ServiceID) (*mcp.ServerProcess, error) {
	st, token, err := t.refresh(ctx, id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	e, ok := t.services[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	svc := e.svc
	existing := e.proc
	epoch := e.epoch
	if e.status.State != st.State {
		st = e.status
	}
	t.mu.Unlock()

	if st.State == StateRunning && existing != nil {
		return existing, nil
	}
	if st.State != StateAuthenticatedIdle {
		return nil, &NotAuthorizedError{Service: id, State: st.State}
	}

	cfg := svc.Server
	if svc.OAuth {
		cfg = cfg.WithEnv(svc.TokenVariable(), token)
	}

	t.logger.Info("starting service server", "service", id, "command", cfg.Command)
	proc, err := t.launcher.Start(ctx, svc.ServerName(), cfg)

	t.mu.Lock()
	if cur, ok := t.services[id]; !ok || cur != e {
		t.mu.Unlock()
		if err == nil {
			return proc, nil
		}
		return nil, err
	}
	next := e.status
	if err != nil {
		next.LastError = err.Error()
		e.status = next
		t.mu.Unlock()
		t.logger.Error("service server failed to start", "service", id, "error", err)
		return nil, err
	}
	// The launch ran unlocked: a Disconnect or token loss in between wins.
	if e.epoch != epoch || !next.HasValidToken {
		state := next.State
		t.mu.Unlock()
		t.logger.Warn("authorization lost while starting, stopping server", "service", id)
		if err := t.launcher.Stop(svc.ServerName()); err != nil && !errors.Is(err, mcp.ErrServerNotFound) {
			t.logger.Error("stopping unauthorized server failed", "service", id, "error", err)
		}
		return nil, &NotAuthorizedError{Service: id, State: state}
	}
	if !proc.Connected() {
		next.ServerRunning = false
		next.State = derive(next)
		e.proc = nil
		t.setStatusLocked(e, next)
		t.mu.Unlock()
		return nil, fmt.Errorf("service %s: %w", id, mcp.ErrServerStopped)
	}
	next.LastError = ""
	next.ServerRunning = true
	next.State = derive(next)
	e.proc = proc
	t.setStatusLocked(e, next)
	t.mu.Unlock()
	return proc, nil
}

// EnsureRunning refreshes id and, when it is authenticated but idle, makes
// exactly one start attempt. The returned status reflects the outcome.
func (t *Tracker) EnsureRunning(ctx context.Context, id ServiceID) (*mcp.ServerProcess, Status, error) {
	st, err := t.Refresh(ctx, id)
	if err != nil {
		return nil, st, err
	}
	switch st.State {
	case StateRunning, StateAuthenticatedIdle:
		proc, err := t.Start(ctx, id)
		cur, _ := t.Status(id)
		return proc, cur, err
	default:
		return nil, st, &NotAuthorizedError{Service: id, State: st.State}
	}
}

// Disconnect removes the service's stored credentials and stops its
// server. The service ends unconfigured.
func (t *Tracker) Disconnect(ctx context.Context, id ServiceID) error {
	t.mu.Lock()
	e, ok := t.services[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	svc := e.svc
	e.disconnected = true
	e.epoch++
	t.setStatusLocked(e, Status{Service: id, State: StateUnconfigured})
	t.mu.Unlock()

	var errs []error
	if svc.OAuth {
		if err := t.creds.RemoveCredentials(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("removing credentials: %w", err))
		}
	}
	if err := t.launcher.Stop(svc.ServerName()); err != nil && !errors.Is(err, mcp.ErrServerNotFound) {
		errs = append(errs, fmt.Errorf("stopping server: %w", err))
	}

	t.mu.Lock()
	e.proc = nil
	t.mu.Unlock()

	t.logger.Info("service disconnected", "service", id)
	return errors.Join(errs...)
}

// AuthorizationCompleted is the hook for the OAuth redirect listener. It
// re-evaluates the service in the background and never blocks the caller.
func (t *Tracker) AuthorizationCompleted(id ServiceID) {
	t.mu.Lock()
	if e, ok := t.services[id]; ok {
		e.disconnected = false
	}
	t.mu.Unlock()

	go func() {
		if _, err := t.Refresh(context.Background(), id); err != nil {
			t.logger.Warn("refresh after authorization failed", "service", id, "error", err)
		}
	}()
}

// handleEvent moves a running service back to authenticated-idle when its
// server exits. It does not call back into the launcher.
func (t *Tracker) handleEvent(ev mcp.Event) {
	if ev.Type != mcp.EventStopped && ev.Type != mcp.EventErrored {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.services[ServiceID(ev.Server)]
	if !ok || !e.status.ServerRunning {
		return
	}
	next := e.status
	next.ServerRunning = false
	if ev.Err != nil {
		next.LastError = ev.Err.Error()
	}
	next.State = derive(next)
	e.proc = nil
	t.setStatusLocked(e, next)
}
