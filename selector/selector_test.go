package selector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/toolhost/llm"
	"github.com/armatrix/toolhost/mcp"
)

func tool(server, name, inputSchema string) mcp.ToolDescriptor {
	t := mcp.ToolDescriptor{Name: name, Server: server, QualifiedName: mcp.QualifiedName(server, name)}
	if inputSchema != "" {
		t.InputSchema = json.RawMessage(inputSchema)
	}
	return t
}

const querySchema = `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`

func driveTools() []mcp.ToolDescriptor {
	return []mcp.ToolDescriptor{
		tool("google-drive", "list_files", `{"type":"object","properties":{"limit":{"type":"integer"}}}`),
		tool("google-drive", "search_files", querySchema),
		tool("google-drive", "read_file", `{"type":"object","properties":{"fileId":{"type":"string"}},"required":["fileId"]}`),
	}
}

// scriptedModel answers every completion with text and records requests.
type scriptedModel struct {
	mu   sync.Mutex
	text string
	err  error
	reqs []llm.Request
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Text: m.text}, nil
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		tool mcp.ToolDescriptor
		want string
	}{
		{mcp.ToolDescriptor{Name: "search_files", Description: "Full-text search"}, "Full-text search"},
		{mcp.ToolDescriptor{Name: "search_files"}, "search for content using keywords"},
		{mcp.ToolDescriptor{Name: "run_query"}, "query records matching a filter"},
		{mcp.ToolDescriptor{Name: "list_channels"}, "list available items"},
		{mcp.ToolDescriptor{Name: "fetch_page"}, "retrieve a specific item by identifier"},
		{mcp.ToolDescriptor{Name: "create_issue"}, "create a new item"},
		{mcp.ToolDescriptor{Name: "send_message"}, "send a message"},
		{mcp.ToolDescriptor{Name: "summarize-channel"}, "run summarize channel"},
	}
	for _, tt := range tests {
		t.Run(tt.tool.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.tool))
		})
	}
}

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		question, service, want string
	}{
		{"What files are in my Google Drive about budget?", "google-drive", "files budget"},
		{"Show me my recent Slack messages", "slack", "recent messages"},
		{"What's on GitHub?", "github", DefaultQuery},
		{"", "notion", DefaultQuery},
		{"find the Q3 roadmap in notion", "Notion", "q3 roadmap"},
		{"anything new in gdrive", "gdrive", "anything new"},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuery(tt.question, tt.service))
		})
	}
}

func TestArguments(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   map[string]any
	}{
		{"no schema", "", map[string]any{"query": "x"}},
		{"query key", querySchema, map[string]any{"query": "x"}},
		{"q key", `{"type":"object","properties":{"q":{"type":"string"},"limit":{"type":"integer"}}}`, map[string]any{"q": "x"}},
		{"required string", `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`, map[string]any{"path": "x"}},
		{"nothing fits", `{"type":"object","properties":{"limit":{"type":"integer"}}}`, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Arguments(tool("s", "t", tt.schema), "x"))
		})
	}
}

func TestSelect_ModelChoice(t *testing.T) {
	model := &scriptedModel{text: `{"selectedTool":"search_files","query":"budget","reasoning":"keyword lookup","retryQuery":"finance"}`}
	s := New(model)

	sel, err := s.Select(context.Background(), "Where is the budget sheet?", "google-drive", driveTools())
	require.NoError(t, err)

	assert.Equal(t, SourceModel, sel.Source)
	assert.Equal(t, "search_files", sel.SelectedTool())
	assert.Equal(t, map[string]any{"query": "budget"}, sel.Arguments)
	assert.Equal(t, "finance", sel.RetryQuery)
	assert.Equal(t, "keyword lookup", sel.Reasoning)

	require.Len(t, model.reqs, 1)
	req := model.reqs[0]
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.1, *req.Temperature, 1e-9)
	assert.Contains(t, req.System, "Google Drive")
	assert.Contains(t, req.System, "- list_files: list available items")
	assert.Contains(t, req.System, "- read_file: retrieve a specific item by identifier")
	assert.Contains(t, req.System, `"selectedTool"`)
	assert.Contains(t, req.System, `"retryQuery"`)
	assert.Equal(t, "Where is the budget sheet?", req.Messages[0].Text)
}

func TestSelect_FencedReply(t *testing.T) {
	model := &scriptedModel{text: "```json\n{\"selectedTool\":\"read_file\",\"query\":\"abc123\"}\n```"}

	sel, err := New(model).Select(context.Background(), "open file abc123", "google-drive", driveTools())
	require.NoError(t, err)
	assert.Equal(t, SourceModel, sel.Source)
	assert.Equal(t, map[string]any{"fileId": "abc123"}, sel.Arguments)
}

func TestSelect_QualifiedNameAccepted(t *testing.T) {
	model := &scriptedModel{text: `Sure! {"selectedTool":"google-drive.list_files","query":""}`}

	sel, err := New(model).Select(context.Background(), "list my files", "google-drive", driveTools())
	require.NoError(t, err)
	assert.Equal(t, SourceModel, sel.Source)
	assert.Equal(t, "list_files", sel.SelectedTool())
	assert.Equal(t, "files", sel.Query)
}

func TestSelect_FallsBackToHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		model *scriptedModel
	}{
		{"malformed json", &scriptedModel{text: `{"selectedTool": search_files`}},
		{"prose", &scriptedModel{text: "I would use the search tool."}},
		{"unknown tool", &scriptedModel{text: `{"selectedTool":"delete_everything","query":"x"}`}},
		{"empty tool", &scriptedModel{text: `{"selectedTool":"","query":"x"}`}},
		{"completion error", &scriptedModel{err: errors.New("connection reset")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := New(tt.model).Select(context.Background(), "What's in my Drive about taxes?", "google-drive", driveTools())
			require.NoError(t, err)
			assert.Equal(t, SourceHeuristic, sel.Source)
			assert.Equal(t, "search_files", sel.SelectedTool())
			assert.Equal(t, map[string]any{"query": "taxes"}, sel.Arguments)
		})
	}
}

func TestSelect_NoCompleter(t *testing.T) {
	sel, err := New(nil).Select(context.Background(), "recent issues", "github", []mcp.ToolDescriptor{
		tool("github", "list_issues", ""),
		tool("github", "run_query", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, sel.Source)
	assert.Equal(t, "run_query", sel.SelectedTool())
	assert.Equal(t, "recent issues", sel.Query)
}

func TestSelect_HeuristicFirstCandidate(t *testing.T) {
	sel, err := New(nil).Select(context.Background(), "channels", "slack", []mcp.ToolDescriptor{
		tool("slack", "list_channels", ""),
		tool("slack", "send_message", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, "list_channels", sel.SelectedTool())
}

func TestSelect_NoCandidates(t *testing.T) {
	_, err := New(nil).Select(context.Background(), "anything", "slack", nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}
