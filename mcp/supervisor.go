package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a Supervisor lifecycle event.
type EventType string

const (
	EventStarted          EventType = "started"
	EventStopped          EventType = "stopped"
	EventErrored          EventType = "errored"
	EventToolsChanged     EventType = "tools_changed"
	EventResourcesChanged EventType = "resources_changed"
	EventPromptsChanged   EventType = "prompts_changed"
	EventNotification     EventType = "notification"
)

// Event is delivered to listeners registered with AddListener.
type Event struct {
	Type   EventType
	Server string

	// Err is the exit or transport error for EventErrored.
	Err error

	// Notification is set for EventNotification.
	Notification *Notification
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*supervisorOptions)

type supervisorOptions struct {
	spawner          Spawner
	logger           *slog.Logger
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	shutdownGrace    time.Duration
	clientInfo       Implementation
}

func (o *supervisorOptions) applyDefaults() {
	if o.spawner == nil {
		o.spawner = ExecSpawner{}
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.requestTimeout <= 0 {
		o.requestTimeout = DefaultRequestTimeout
	}
	if o.handshakeTimeout <= 0 {
		o.handshakeTimeout = DefaultHandshakeTimeout
	}
	if o.shutdownGrace <= 0 {
		o.shutdownGrace = DefaultShutdownGrace
	}
	if o.clientInfo.Name == "" {
		o.clientInfo = DefaultClientInfo
	}
}

// WithSpawner replaces the os/exec process spawner.
func WithSpawner(s Spawner) SupervisorOption {
	return func(o *supervisorOptions) { o.spawner = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SupervisorOption {
	return func(o *supervisorOptions) { o.logger = l }
}

// WithRequestTimeout sets how long a request may stay pending.
func WithRequestTimeout(d time.Duration) SupervisorOption {
	return func(o *supervisorOptions) { o.requestTimeout = d }
}

// WithHandshakeTimeout bounds the initialize round trip.
func WithHandshakeTimeout(d time.Duration) SupervisorOption {
	return func(o *supervisorOptions) { o.handshakeTimeout = d }
}

// WithShutdownGrace sets how long Stop waits before killing.
func WithShutdownGrace(d time.Duration) SupervisorOption {
	return func(o *supervisorOptions) { o.shutdownGrace = d }
}

// WithClientInfo sets the client identity sent in initialize.
func WithClientInfo(info Implementation) SupervisorOption {
	return func(o *supervisorOptions) { o.clientInfo = info }
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

// pendingRequest is an in-flight call awaiting a response with its id.
type pendingRequest struct {
	id      int64
	method  string
	owner   *ServerProcess
	created time.Time
	ch      chan rpcResult
}

type startCall struct {
	done chan struct{}
	sp   *ServerProcess
	err  error
}

// Supervisor owns one OS process per tool server name, frames JSON-RPC
// over their stdio and correlates responses with pending requests.
//
// The live-server and pending-request maps never leave the Supervisor;
// every mutation goes through its methods or its reader goroutines.
type Supervisor struct {
	opts   supervisorOptions
	logger *slog.Logger

	nextID atomic.Int64

	mu        sync.Mutex
	servers   map[string]*ServerProcess
	order     []string
	starting  map[string]*startCall
	pending   map[int64]*pendingRequest
	listeners map[int]func(Event)
	nextLis   int
}

// NewSupervisor creates a Supervisor with no live servers.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	var o supervisorOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.applyDefaults()
	return &Supervisor{
		opts:      o,
		logger:    o.logger.With("component", "mcp.supervisor"),
		servers:   make(map[string]*ServerProcess),
		starting:  make(map[string]*startCall),
		pending:   make(map[int64]*pendingRequest),
		listeners: make(map[int]func(Event)),
	}
}

// RequestTimeout returns the configured pending-request timeout.
func (s *Supervisor) RequestTimeout() time.Duration { return s.opts.requestTimeout }

// AddListener registers fn for lifecycle events and returns a function
// that removes it. Listeners run on Supervisor goroutines and must not
// block.
func (s *Supervisor) AddListener(fn func(Event)) (remove func()) {
	s.mu.Lock()
	id := s.nextLis
	s.nextLis++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Supervisor) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Start spawns the named server, performs the initialize handshake and
// lists every advertised capability. Starting a name that is already live
// returns the existing process; concurrent starts of one name share a
// single attempt.
func (s *Supervisor) Start(ctx context.Context, name string, cfg ServerConfig) (*ServerProcess, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: server name is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if sp, ok := s.servers[name]; ok && sp.Connected() {
		s.mu.Unlock()
		return sp, nil
	}
	if call, ok := s.starting[name]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.sp, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &startCall{done: make(chan struct{})}
	s.starting[name] = call
	s.mu.Unlock()

	call.sp, call.err = s.start(ctx, name, cfg)

	s.mu.Lock()
	delete(s.starting, name)
	s.mu.Unlock()
	close(call.done)
	return call.sp, call.err
}

func (s *Supervisor) start(ctx context.Context, name string, cfg ServerConfig) (*ServerProcess, error) {
	log := s.logger.With("server", name)

	proc, err := s.opts.spawner.Spawn(ctx, name, cfg)
	if err != nil {
		log.Error("spawn failed", "command", cfg.Command, "error", err)
		return nil, &SpawnError{Server: name, Err: err}
	}

	sp := newServerProcess(name, cfg, proc, time.Now())

	s.mu.Lock()
	s.servers[name] = sp
	s.mu.Unlock()

	go s.readLoop(sp)
	go s.stderrLoop(sp)
	go s.waitLoop(sp)

	log.Info("server spawned", "command", cfg.Command, "pid", proc.Pid())

	if err := s.handshake(ctx, sp); err != nil {
		log.Error("handshake failed", "error", err)
		sp.stopping.Store(true)
		_ = proc.Kill()
		s.detach(sp, err)
		return nil, &HandshakeError{Server: name, Err: err}
	}

	s.mu.Lock()
	if s.servers[name] != sp {
		// Exited between the handshake and here.
		s.mu.Unlock()
		return nil, &HandshakeError{Server: name, Err: ErrServerStopped}
	}
	sp.setConnected(true)
	s.order = append(s.order, name)
	s.mu.Unlock()

	log.Info("server connected",
		"server_name", sp.Info().Name,
		"server_version", sp.Info().Version,
		"tools", len(sp.Tools()),
		"resources", len(sp.Resources()),
		"prompts", len(sp.Prompts()),
	)
	s.emit(Event{Type: EventStarted, Server: name})
	return sp, nil
}

// handshake runs initialize, notifications/initialized and the list
// requests for every advertised capability.
func (s *Supervisor) handshake(ctx context.Context, sp *ServerProcess) error {
	raw, err := s.request(ctx, sp, MethodInitialize, initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      s.opts.clientInfo,
	}, s.opts.handshakeTimeout)
	if err != nil {
		if errors.Is(err, ErrRequestTimeout) {
			return fmt.Errorf("%w after %s", ErrHandshakeTimeout, s.opts.handshakeTimeout)
		}
		return err
	}

	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decoding initialize result: %w", err)
	}
	sp.setInitialized(res)

	if err := s.notify(sp, MethodInitialized, nil); err != nil {
		return fmt.Errorf("sending initialized: %w", err)
	}

	caps := res.Capabilities
	if caps.Tools != nil {
		s.refreshTools(ctx, sp)
	}
	if caps.Resources != nil {
		s.refreshResources(ctx, sp)
	}
	if caps.Prompts != nil {
		s.refreshPrompts(ctx, sp)
	}
	return nil
}

func (s *Supervisor) refreshTools(ctx context.Context, sp *ServerProcess) {
	var all []ToolInfo
	err := s.listPages(ctx, sp, MethodToolsList, func(raw json.RawMessage) (string, error) {
		var page toolsListResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", err
		}
		all = append(all, page.Tools...)
		return page.NextCursor, nil
	})
	if err != nil {
		s.logger.Warn("listing tools failed", "server", sp.name, "error", err)
		return
	}
	sp.setTools(all)
}

func (s *Supervisor) refreshResources(ctx context.Context, sp *ServerProcess) {
	var all []Resource
	err := s.listPages(ctx, sp, MethodResourcesList, func(raw json.RawMessage) (string, error) {
		var page resourcesListResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", err
		}
		all = append(all, page.Resources...)
		return page.NextCursor, nil
	})
	if err != nil {
		s.logger.Warn("listing resources failed", "server", sp.name, "error", err)
		return
	}
	sp.setResources(all)
}

func (s *Supervisor) refreshPrompts(ctx context.Context, sp *ServerProcess) {
	var all []Prompt
	err := s.listPages(ctx, sp, MethodPromptsList, func(raw json.RawMessage) (string, error) {
		var page promptsListResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", err
		}
		all = append(all, page.Prompts...)
		return page.NextCursor, nil
	})
	if err != nil {
		s.logger.Warn("listing prompts failed", "server", sp.name, "error", err)
		return
	}
	sp.setPrompts(all)
}

// listPages follows nextCursor until the server stops returning one.
func (s *Supervisor) listPages(ctx context.Context, sp *ServerProcess, method string, page func(json.RawMessage) (string, error)) error {
	cursor := ""
	for range maxListPages {
		var params any
		if cursor != "" {
			params = listParams{Cursor: cursor}
		}
		raw, err := s.request(ctx, sp, method, params, s.opts.requestTimeout)
		if err != nil {
			return err
		}
		next, err := page(raw)
		if err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		if next == "" || next == cursor {
			return nil
		}
		cursor = next
	}
	return fmt.Errorf("%s: more than %d pages", method, maxListPages)
}

// Stop asks the server to shut down, closes its stdin and kills it if it
// has not exited within the grace period. Internal state is removed even
// when shutdown signaling fails.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	sp, ok := s.servers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return s.stop(sp)
}

func (s *Supervisor) stop(sp *ServerProcess) error {
	log := s.logger.With("server", sp.name)
	sp.stopping.Store(true)

	var killErr error
	if err := s.notify(sp, MethodShutdown, nil); err != nil {
		log.Debug("shutdown notification failed, killing", "error", err)
		killErr = sp.proc.Kill()
	} else {
		_ = sp.stdin.Close()
		select {
		case <-sp.done:
		case <-time.After(s.opts.shutdownGrace):
			log.Warn("server did not exit within grace period, killing", "grace", s.opts.shutdownGrace)
			killErr = sp.proc.Kill()
		}
	}

	select {
	case <-sp.done:
	case <-time.After(s.opts.shutdownGrace):
		log.Warn("server still running after kill, forgetting it")
		s.detach(sp, ErrServerStopped)
	}
	if killErr != nil {
		return fmt.Errorf("mcp: killing %s: %w", sp.name, killErr)
	}
	return nil
}

// Close stops every live server.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	all := make([]*ServerProcess, 0, len(s.servers))
	for _, sp := range s.servers {
		all = append(all, sp)
	}
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sp := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.stop(sp); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Servers returns the connected servers in start order.
func (s *Supervisor) Servers() []*ServerProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ServerProcess, 0, len(s.order))
	for _, name := range s.order {
		if sp, ok := s.servers[name]; ok && sp.Connected() {
			out = append(out, sp)
		}
	}
	return out
}

// Server returns the connected server with the given name.
func (s *Supervisor) Server(name string) (*ServerProcess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.servers[name]
	if !ok || !sp.Connected() {
		return nil, false
	}
	return sp, true
}

// PendingCount returns the number of requests awaiting a response.
func (s *Supervisor) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SendRequest sends method to the named server and waits for the matching
// response, the request timeout, or ctx cancellation.
func (s *Supervisor) SendRequest(ctx context.Context, name, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	sp, ok := s.servers[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	if !sp.Connected() {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	return s.request(ctx, sp, method, params, s.opts.requestTimeout)
}

// SendNotification writes a fire-and-forget notification.
func (s *Supervisor) SendNotification(name, method string, params any) error {
	s.mu.Lock()
	sp, ok := s.servers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return s.notify(sp, method, params)
}

func (s *Supervisor) request(ctx context.Context, sp *ServerProcess, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	p := &pendingRequest{
		id:      id,
		method:  method,
		owner:   sp,
		created: time.Now(),
		ch:      make(chan rpcResult, 1),
	}

	s.mu.Lock()
	if s.servers[sp.name] != sp {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrServerStopped, sp.name)
	}
	s.pending[id] = p
	s.mu.Unlock()

	data, err := json.Marshal(outboundRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		s.removePending(id)
		return nil, fmt.Errorf("mcp: encoding %s: %w", method, err)
	}
	if err := sp.writeLine(data); err != nil {
		if !s.removePending(id) {
			r := <-p.ch
			return r.result, r.err
		}
		return nil, fmt.Errorf("mcp: writing %s to %s: %w", method, sp.name, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		return r.result, r.err
	case <-timer.C:
		if !s.removePending(id) {
			r := <-p.ch
			return r.result, r.err
		}
		s.logger.Warn("request timed out", "server", sp.name, "method", method, "id", id, "timeout", timeout)
		return nil, fmt.Errorf("%w: %s to %s after %s", ErrRequestTimeout, method, sp.name, timeout)
	case <-ctx.Done():
		if !s.removePending(id) {
			r := <-p.ch
			return r.result, r.err
		}
		return nil, ctx.Err()
	}
}

// removePending deletes id and reports whether it was still pending. A
// false return means a settler already took it and will deliver on ch.
func (s *Supervisor) removePending(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

func (s *Supervisor) notify(sp *ServerProcess, method string, params any) error {
	data, err := json.Marshal(outboundNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("mcp: encoding %s: %w", method, err)
	}
	return sp.writeLine(data)
}

// readLoop reads stdout chunks, frames them into lines and routes each
// parsed message. It exits on EOF or read error.
func (s *Supervisor) readLoop(sp *ServerProcess) {
	defer close(sp.readDone)

	var frames frameBuffer
	buf := make([]byte, 32*1024)
	r := sp.proc.Stdout()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range frames.Write(buf[:n]) {
				s.handleLine(sp, line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !sp.stopping.Load() {
				s.logger.Warn("reading server output failed", "server", sp.name, "error", err)
			}
			if frames.Pending() > 0 {
				s.logger.Debug("discarding unterminated output", "server", sp.name, "bytes", frames.Pending())
			}
			return
		}
	}
}

// stderrLoop forwards the server's stderr to the debug log.
func (s *Supervisor) stderrLoop(sp *ServerProcess) {
	scanner := bufio.NewScanner(sp.proc.Stderr())
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		s.logger.Debug("server stderr", "server", sp.name, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("server stderr not line oriented, discarding the rest", "server", sp.name, "error", err)
	}
	// An unread pipe would block the server on its next stderr write.
	_, _ = io.Copy(io.Discard, sp.proc.Stderr())
}

// waitLoop reaps the process once stdout is drained and removes its state.
func (s *Supervisor) waitLoop(sp *ServerProcess) {
	<-sp.readDone
	err := sp.proc.Wait()
	if err == nil {
		err = ErrServerStopped
	}
	s.detach(sp, err)
	sp.exitErr = err
	close(sp.done)
}

// detach removes sp from the live set, rejects its pending requests and
// emits the stopped or errored event. It runs at most once per process.
func (s *Supervisor) detach(sp *ServerProcess, cause error) {
	sp.detachOnce.Do(func() {
		wasConnected := sp.Connected()
		sp.setConnected(false)

		s.mu.Lock()
		if s.servers[sp.name] == sp {
			delete(s.servers, sp.name)
			s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == sp.name })
		}
		var orphans []*pendingRequest
		for id, p := range s.pending {
			if p.owner == sp {
				orphans = append(orphans, p)
				delete(s.pending, id)
			}
		}
		s.mu.Unlock()

		for _, p := range orphans {
			p.ch <- rpcResult{err: fmt.Errorf("%w: %s (%s pending since %s)", ErrServerStopped, sp.name, p.method, p.created.Format(time.RFC3339))}
		}

		if !wasConnected {
			return
		}
		if sp.stopping.Load() || errors.Is(cause, ErrServerStopped) {
			s.logger.Info("server stopped", "server", sp.name, "rejected", len(orphans))
			s.emit(Event{Type: EventStopped, Server: sp.name})
			return
		}
		s.logger.Error("server exited", "server", sp.name, "error", cause, "rejected", len(orphans))
		s.emit(Event{Type: EventErrored, Server: sp.name, Err: cause})
	})
}

// handleLine parses one framed line and routes it.
func (s *Supervisor) handleLine(sp *ServerProcess, line []byte) {
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.Warn("dropping malformed message", "error", &MalformedMessageError{Server: sp.name, Line: line, Err: err})
		return
	}

	switch {
	case msg.isResponse():
		s.settle(sp, &msg)
	case msg.hasID() && msg.Method != "":
		go s.answerServerRequest(sp, &msg)
	case msg.Method != "":
		s.dispatchNotification(sp, &msg)
	default:
		s.logger.Warn("dropping malformed message", "error", &MalformedMessageError{
			Server: sp.name, Line: line, Err: errors.New("neither response nor notification"),
		})
	}
}

func (s *Supervisor) settle(sp *ServerProcess, msg *message) {
	var id int64
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		s.logger.Warn("dropping response with non-numeric id", "server", sp.name, "id", string(msg.ID))
		return
	}

	s.mu.Lock()
	p, ok := s.pending[id]
	if ok && p.owner == sp {
		delete(s.pending, id)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("dropping response for unknown request", "server", sp.name, "id", id)
		return
	}
	if msg.Error != nil {
		p.ch <- rpcResult{err: msg.Error}
		return
	}
	result := msg.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	p.ch <- rpcResult{result: result}
}

// answerServerRequest replies to server-initiated requests. Only ping is
// supported.
func (s *Supervisor) answerServerRequest(sp *ServerProcess, msg *message) {
	resp := outboundResponse{JSONRPC: "2.0", ID: msg.ID}
	if msg.Method == MethodPing {
		resp.Result = map[string]any{}
	} else {
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: "method not supported by client: " + msg.Method}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := sp.writeLine(data); err != nil {
		s.logger.Debug("replying to server request failed", "server", sp.name, "method", msg.Method, "error", err)
	}
}

func (s *Supervisor) dispatchNotification(sp *ServerProcess, msg *message) {
	n := &Notification{Server: sp.name, Kind: ParseNotificationKind(msg.Method), Method: msg.Method, Params: msg.Params}
	log := s.logger.With("server", sp.name)

	switch n.Kind {
	case NotificationInitialized, NotificationCancelled:
		log.Debug("notification", "method", msg.Method)
	case NotificationProgress:
		var p progressParams
		_ = json.Unmarshal(msg.Params, &p)
		log.Debug("progress", "token", p.ProgressToken, "progress", p.Progress, "total", p.Total, "message", p.Message)
	case NotificationLogMessage:
		var p logMessageParams
		_ = json.Unmarshal(msg.Params, &p)
		log.Log(context.Background(), serverLogLevel(p.Level), "server log", "logger", p.Logger, "data", p.Data)
	case NotificationToolsListChanged:
		go s.relist(sp, EventToolsChanged, s.refreshTools)
	case NotificationResourcesListChanged:
		go s.relist(sp, EventResourcesChanged, s.refreshResources)
	case NotificationPromptsListChanged:
		go s.relist(sp, EventPromptsChanged, s.refreshPrompts)
	default:
		log.Warn("ignoring unrecognized notification", "method", msg.Method)
	}
	s.emit(Event{Type: EventNotification, Server: sp.name, Notification: n})
}

// relist re-fetches one list after a list_changed notification and
// announces it with typ.
func (s *Supervisor) relist(sp *ServerProcess, typ EventType, refresh func(context.Context, *ServerProcess)) {
	if !sp.Connected() {
		return
	}
	refresh(context.Background(), sp)
	s.emit(Event{Type: typ, Server: sp.name})
}

func serverLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info", "notice":
		return slog.LevelInfo
	case "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
