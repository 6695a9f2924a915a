// Package mcptest provides an in-process MCP tool server and a Spawner that
// connects it to a Supervisor over io.Pipe, so the full stdio protocol can
// be exercised without launching OS processes.
//
// Usage:
//
//	srv := mcptest.NewServer("alpha")
//	mcptest.AddTool(srv, "search", "Search documents", func(ctx context.Context, in SearchInput) (string, error) {
//	    return "found " + in.Query, nil
//	})
//	sp := mcptest.NewSpawner()
//	sp.Register("alpha", srv)
//	sup := mcp.NewSupervisor(mcp.WithSpawner(sp))
package mcptest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/armatrix/toolhost/internal/schema"
	"github.com/armatrix/toolhost/mcp"
)

const protocolVersion = mcp.ProtocolVersion

// JSON-RPC 2.0 error codes returned by the test server.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// ToolHandler answers one tools/call. A returned error becomes an isError
// result carrying the error text.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*mcp.CallResult, error)

type tool struct {
	info    mcp.ToolInfo
	handler ToolHandler
}

type resource struct {
	info mcp.Resource
	text string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(text string) ServerOption {
	return func(s *Server) { s.instructions = text }
}

// WithPageSize splits list results into pages of n entries linked by
// nextCursor.
func WithPageSize(n int) ServerOption {
	return func(s *Server) { s.pageSize = n }
}

// Unresponsive makes the server read requests without ever answering
// initialize.
func Unresponsive() ServerOption {
	return func(s *Server) { s.unresponsive = true }
}

// FailInitialize makes initialize return a JSON-RPC error.
func FailInitialize(message string) ServerOption {
	return func(s *Server) { s.initError = message }
}

// FailList makes tools/list return a JSON-RPC error.
func FailList(message string) ServerOption {
	return func(s *Server) { s.listError = message }
}

// Server is an in-process MCP server that wraps Go functions as tools and
// speaks newline-delimited JSON-RPC 2.0.
type Server struct {
	name         string
	version      string
	instructions string
	pageSize     int
	unresponsive bool
	initError    string
	listError    string

	mu        sync.Mutex
	tools     []tool
	resources []resource
	prompts   []mcp.Prompt
	conns     map[*conn]struct{}
	calls     map[string]int
	received  []string
}

// NewServer creates an in-process server with the given name.
func NewServer(name string, opts ...ServerOption) *Server {
	s := &Server{
		name:    name,
		version: "test",
		conns:   make(map[*conn]struct{}),
		calls:   make(map[string]int),
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// Name returns the server name.
func (s *Server) Name() string { return s.name }

// AddTool registers a typed Go function as a tool. The input type T is
// used for JSON Schema generation.
func AddTool[T any](s *Server, name, description string, handler func(ctx context.Context, input T) (string, error)) {
	raw, _ := schema.GenerateJSON[T]()
	s.AddRawTool(mcp.ToolInfo{Name: name, Description: description, InputSchema: raw},
		func(ctx context.Context, args json.RawMessage) (*mcp.CallResult, error) {
			var input T
			if len(args) > 0 {
				if err := json.Unmarshal(args, &input); err != nil {
					return nil, fmt.Errorf("invalid input: %w", err)
				}
			}
			text, err := handler(ctx, input)
			if err != nil {
				return nil, err
			}
			return TextResult(text), nil
		})
}

// AddRawTool registers a tool with an explicit descriptor and handler.
func (s *Server) AddRawTool(info mcp.ToolInfo, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = append(s.tools, tool{info: info, handler: handler})
}

// RemoveTool unregisters a tool by name.
func (s *Server) RemoveTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tools {
		if t.info.Name == name {
			s.tools = append(s.tools[:i], s.tools[i+1:]...)
			return
		}
	}
}

// AddResource registers a text resource.
func (s *Server) AddResource(info mcp.Resource, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = append(s.resources, resource{info: info, text: text})
}

// AddPrompt registers a prompt template.
func (s *Server) AddPrompt(p mcp.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
}

// ToolNames returns the names of all registered tools.
func (s *Server) ToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.info.Name
	}
	return names
}

// Calls returns how many times the named tool was invoked.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Received returns the methods of every message received, in order.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Notify sends a notification to every connected client.
func (s *Server) Notify(method string, params any) error {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(notification{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
			return err
		}
	}
	return nil
}

// SendRaw writes line verbatim followed by a newline to every connected
// client.
func (s *Server) SendRaw(line string) error {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.writeRaw([]byte(line + "\n")); err != nil {
			return err
		}
	}
	return nil
}

// Serve processes requests from r and writes responses to w until r
// reaches EOF or ctx is done. Tool calls run concurrently; everything else
// is answered in order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &conn{w: w}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = c.writeError(json.RawMessage("null"), codeParseError, "parse error: "+err.Error())
			continue
		}

		s.mu.Lock()
		s.received = append(s.received, req.Method)
		s.mu.Unlock()

		if req.isResponse() || req.isNotification() {
			continue
		}
		if s.unresponsive {
			continue
		}

		if req.Method == mcp.MethodToolsCall {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.handleToolsCall(ctx, c, &req)
			}()
			continue
		}
		if err := s.dispatch(c, &req); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(c *conn, req *request) error {
	switch req.Method {
	case mcp.MethodInitialize:
		return s.handleInitialize(c, req)
	case mcp.MethodPing:
		return c.writeResult(req.ID, map[string]any{})
	case mcp.MethodToolsList:
		if s.listError != "" {
			return c.writeError(req.ID, codeInvalidParams, s.listError)
		}
		s.mu.Lock()
		infos := make([]mcp.ToolInfo, len(s.tools))
		for i, t := range s.tools {
			infos[i] = t.info
		}
		s.mu.Unlock()
		page, next := s.paginate(len(infos), req.cursor())
		return c.writeResult(req.ID, map[string]any{"tools": infos[page[0]:page[1]], "nextCursor": next})
	case mcp.MethodResourcesList:
		s.mu.Lock()
		infos := make([]mcp.Resource, len(s.resources))
		for i, r := range s.resources {
			infos[i] = r.info
		}
		s.mu.Unlock()
		page, next := s.paginate(len(infos), req.cursor())
		return c.writeResult(req.ID, map[string]any{"resources": infos[page[0]:page[1]], "nextCursor": next})
	case mcp.MethodResourcesRead:
		return s.handleResourcesRead(c, req)
	case mcp.MethodPromptsList:
		s.mu.Lock()
		prompts := append([]mcp.Prompt(nil), s.prompts...)
		s.mu.Unlock()
		page, next := s.paginate(len(prompts), req.cursor())
		return c.writeResult(req.ID, map[string]any{"prompts": prompts[page[0]:page[1]], "nextCursor": next})
	default:
		return c.writeError(req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(c *conn, req *request) error {
	if s.initError != "" {
		return c.writeError(req.ID, codeInvalidParams, s.initError)
	}

	s.mu.Lock()
	caps := map[string]any{}
	if len(s.tools) > 0 {
		caps["tools"] = map[string]any{"listChanged": true}
	}
	if len(s.resources) > 0 {
		caps["resources"] = map[string]any{}
	}
	if len(s.prompts) > 0 {
		caps["prompts"] = map[string]any{}
	}
	s.mu.Unlock()

	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    caps,
		"serverInfo":      mcp.Implementation{Name: s.name, Version: s.version},
	}
	if s.instructions != "" {
		result["instructions"] = s.instructions
	}
	return c.writeResult(req.ID, result)
}

func (s *Server) handleToolsCall(ctx context.Context, c *conn, req *request) error {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.writeError(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	s.mu.Lock()
	var handler ToolHandler
	for _, t := range s.tools {
		if t.info.Name == params.Name {
			handler = t.handler
			break
		}
	}
	s.calls[params.Name]++
	s.mu.Unlock()

	if handler == nil {
		return c.writeError(req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	result, err := handler(ctx, params.Arguments)
	if err != nil {
		result = ErrorResult(err.Error())
	}
	return c.writeResult(req.ID, result)
}

func (s *Server) handleResourcesRead(c *conn, req *request) error {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.writeError(req.ID, codeInvalidParams, "invalid resources/read params: "+err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resources {
		if r.info.URI == params.URI {
			return c.writeResult(req.ID, map[string]any{
				"contents": []mcp.ResourceContent{{URI: r.info.URI, MIMEType: r.info.MIMEType, Text: r.text}},
			})
		}
	}
	return c.writeError(req.ID, codeInvalidParams, "unknown resource: "+params.URI)
}

// paginate returns the [start, end) window for cursor and the next cursor.
func (s *Server) paginate(n int, cursor string) ([2]int, string) {
	start, _ := strconv.Atoi(cursor)
	if start < 0 || start > n {
		start = n
	}
	if s.pageSize <= 0 {
		return [2]int{start, n}, ""
	}
	end := min(start+s.pageSize, n)
	if end >= n {
		return [2]int{start, n}, ""
	}
	return [2]int{start, end}, strconv.Itoa(end)
}

// TextResult builds a successful result with one text block.
func TextResult(text string) *mcp.CallResult {
	return &mcp.CallResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult builds an isError result with one text block.
func ErrorResult(text string) *mcp.CallResult {
	return &mcp.CallResult{Content: []mcp.ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

// JSONResult builds a result whose single text block is v encoded as JSON.
func JSONResult(v any) *mcp.CallResult {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return TextResult(string(data))
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *request) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

func (r *request) isResponse() bool {
	return !r.isNotification() && r.Method == ""
}

func (r *request) cursor() string {
	var p struct {
		Cursor string `json:"cursor"`
	}
	_ = json.Unmarshal(r.Params, &p)
	return p.Cursor
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *mcp.RPCError   `json:"error,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// conn serializes writes of one Serve loop.
type conn struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(append(data, '\n'))
}

func (c *conn) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.Write(data)
	return err
}

func (c *conn) writeResult(id json.RawMessage, result any) error {
	return c.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (c *conn) writeError(id json.RawMessage, code int, message string) error {
	return c.write(response{JSONRPC: "2.0", ID: id, Error: &mcp.RPCError{Code: code, Message: message}})
}
