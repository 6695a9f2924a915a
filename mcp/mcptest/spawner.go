package mcptest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/armatrix/toolhost/mcp"
)

// ErrUnknownServer is returned by Spawn for names with no registered Server.
var ErrUnknownServer = errors.New("mcptest: no server registered")

// Spawner implements mcp.Spawner by running registered in-process servers
// over pipes. Every spawn is recorded so tests can inspect the config and
// environment each process received.
type Spawner struct {
	mu      sync.Mutex
	servers map[string]*Server
	spawns  map[string][]mcp.ServerConfig
	procs   map[string]*Process
	failErr map[string]error
}

var _ mcp.Spawner = (*Spawner)(nil)

// NewSpawner creates an empty Spawner.
func NewSpawner() *Spawner {
	return &Spawner{
		servers: make(map[string]*Server),
		spawns:  make(map[string][]mcp.ServerConfig),
		procs:   make(map[string]*Process),
		failErr: make(map[string]error),
	}
}

// Register makes srv the process launched for name.
func (s *Spawner) Register(name string, srv *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[name] = srv
}

// FailSpawn makes every later Spawn of name fail with err.
func (s *Spawner) FailSpawn(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr[name] = err
}

// Spawn connects a fresh Serve loop of the registered server to a new
// Process.
func (s *Spawner) Spawn(_ context.Context, name string, cfg mcp.ServerConfig) (mcp.Process, error) {
	s.mu.Lock()
	s.spawns[name] = append(s.spawns[name], cfg)
	srv, ok := s.servers[name]
	failErr := s.failErr[name]
	s.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}

	p := NewProcess()
	go func() {
		err := srv.Serve(p.ctx, p.serverIn, p.serverOut)
		p.exit(err)
	}()

	s.mu.Lock()
	s.procs[name] = p
	s.mu.Unlock()
	return p, nil
}

// SpawnCount returns how many times name was spawned.
func (s *Spawner) SpawnCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawns[name])
}

// LastConfig returns the config of the most recent spawn of name.
func (s *Spawner) LastConfig(name string) (mcp.ServerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfgs := s.spawns[name]
	if len(cfgs) == 0 {
		return mcp.ServerConfig{}, false
	}
	return cfgs[len(cfgs)-1], true
}

// Process returns the most recent process spawned for name.
func (s *Spawner) Process(name string) (*Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[name]
	return p, ok
}

// Process is an mcp.Process backed by io.Pipe. The client side is what
// the Supervisor sees; the server side is handed to a Serve loop or driven
// directly by a test.
type Process struct {
	ctx    context.Context
	cancel context.CancelFunc

	clientIn  *io.PipeWriter // Supervisor writes requests
	serverIn  *io.PipeReader // server reads requests
	serverOut *io.PipeWriter // server writes responses
	clientOut *io.PipeReader // Supervisor reads responses
	stderrR   *io.PipeReader
	stderrW   *io.PipeWriter

	once   sync.Once
	exited chan struct{}
	err    error
}

var _ mcp.Process = (*Process)(nil)

// NewProcess creates an unattached pipe process. Tests that script the
// server side by hand read requests from ServerStdin and write to
// ServerStdout, then call Exit.
func NewProcess() *Process {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Process{ctx: ctx, cancel: cancel, exited: make(chan struct{})}
	p.serverIn, p.clientIn = io.Pipe()
	p.clientOut, p.serverOut = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *Process) Stdin() io.WriteCloser { return p.clientIn }
func (p *Process) Stdout() io.Reader     { return p.clientOut }
func (p *Process) Stderr() io.Reader     { return p.stderrR }
func (p *Process) Pid() int              { return 0 }

// ServerStdin is the read side of the client's stdin.
func (p *Process) ServerStdin() io.Reader { return p.serverIn }

// ServerStdout is the write side of the client's stdout.
func (p *Process) ServerStdout() io.Writer { return p.serverOut }

// ServerStderr is the write side of the client's stderr.
func (p *Process) ServerStderr() io.Writer { return p.stderrW }

// Wait blocks until the process exits.
func (p *Process) Wait() error {
	<-p.exited
	return p.err
}

// Kill terminates the process as a crash would: every pipe is broken and
// Wait reports an error.
func (p *Process) Kill() error {
	p.exit(errors.New("signal: killed"))
	return nil
}

// Exit ends the process with err, closing its output streams.
func (p *Process) Exit(err error) { p.exit(err) }

// Exited is closed once the process has ended.
func (p *Process) Exited() <-chan struct{} { return p.exited }

func (p *Process) exit(err error) {
	p.once.Do(func() {
		p.err = err
		p.cancel()
		_ = p.serverIn.Close()
		_ = p.serverOut.Close()
		_ = p.stderrW.Close()
		close(p.exited)
	})
}
