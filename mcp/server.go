package mcp

import (
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ServerProcess is one live tool server owned by a Supervisor. Callers
// get read-only views; all mutation happens inside the Supervisor.
type ServerProcess struct {
	name      string
	config    ServerConfig
	proc      Process
	startedAt time.Time

	writeMu sync.Mutex
	stdin   io.WriteCloser

	mu           sync.RWMutex
	connected    bool
	info         Implementation
	capabilities ServerCapabilities
	instructions string
	tools        []ToolInfo
	resources    []Resource
	prompts      []Prompt

	stopping   atomic.Bool
	detachOnce sync.Once
	readDone   chan struct{}
	done       chan struct{}
	exitErr    error
}

func newServerProcess(name string, cfg ServerConfig, proc Process, now time.Time) *ServerProcess {
	return &ServerProcess{
		name:      name,
		config:    cfg,
		proc:      proc,
		stdin:     proc.Stdin(),
		startedAt: now,
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Name returns the server's unique name.
func (p *ServerProcess) Name() string { return p.name }

// Config returns the configuration the process was started with.
func (p *ServerProcess) Config() ServerConfig { return p.config }

// Pid returns the OS process id, or 0 for in-process servers.
func (p *ServerProcess) Pid() int { return p.proc.Pid() }

// StartedAt returns when the process was spawned.
func (p *ServerProcess) StartedAt() time.Time { return p.startedAt }

// Done is closed once the process has exited and its state was removed.
func (p *ServerProcess) Done() <-chan struct{} { return p.done }

// ExitErr returns the process exit error. Only valid after Done is closed.
func (p *ServerProcess) ExitErr() error {
	<-p.done
	return p.exitErr
}

// Connected reports whether the handshake completed and the process is
// still live.
func (p *ServerProcess) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Info returns the server's self-reported implementation info.
func (p *ServerProcess) Info() Implementation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// Capabilities returns what the server advertised during initialize.
func (p *ServerProcess) Capabilities() ServerCapabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capabilities
}

// Instructions returns the optional usage instructions from initialize.
func (p *ServerProcess) Instructions() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.instructions
}

// Tools returns a copy of the server's current tool list.
func (p *ServerProcess) Tools() []ToolInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.tools)
}

// Resources returns a copy of the server's current resource list.
func (p *ServerProcess) Resources() []Resource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.resources)
}

// Prompts returns a copy of the server's current prompt list.
func (p *ServerProcess) Prompts() []Prompt {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.prompts)
}

func (p *ServerProcess) setInitialized(res initializeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = res.ServerInfo
	p.capabilities = res.Capabilities
	p.instructions = res.Instructions
}

func (p *ServerProcess) setConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}

func (p *ServerProcess) setTools(tools []ToolInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tools = tools
}

func (p *ServerProcess) setResources(resources []Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = resources
}

func (p *ServerProcess) setPrompts(prompts []Prompt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = prompts
}

// writeLine writes one newline-terminated JSON object to stdin.
func (p *ServerProcess) writeLine(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
