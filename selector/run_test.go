package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/toolhost/mcp"
)

type call struct {
	tool string
	args map[string]any
}

// recordingInvoker returns results in order and records each call.
type recordingInvoker struct {
	results []*mcp.CallResult
	err     error
	calls   []call
}

func (r *recordingInvoker) invoke(_ context.Context, t mcp.ToolDescriptor, args map[string]any) (*mcp.CallResult, error) {
	r.calls = append(r.calls, call{tool: t.Name, args: args})
	if r.err != nil {
		return nil, r.err
	}
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res, nil
}

func textResult(s string) *mcp.CallResult {
	return &mcp.CallResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

func TestRun_DataOnFirstAttempt(t *testing.T) {
	inv := &recordingInvoker{results: []*mcp.CallResult{textResult(`[{"name":"budget.xlsx"}]`)}}

	out, err := New(nil).Run(context.Background(), "budget files", "google-drive", driveTools(), inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, `[{"name":"budget.xlsx"}]`, out.Result.Text())
	require.Len(t, inv.calls, 1)
	assert.Equal(t, "search_files", inv.calls[0].tool)
}

func TestRun_RetriesWithModelRetryQuery(t *testing.T) {
	model := &scriptedModel{text: `{"selectedTool":"search_files","query":"q3 budget v2","retryQuery":"budget"}`}
	inv := &recordingInvoker{results: []*mcp.CallResult{textResult("[]"), textResult("budget.xlsx")}}

	out, err := New(model).Run(context.Background(), "the q3 budget v2", "google-drive", driveTools(), inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	require.Len(t, inv.calls, 2)
	assert.Equal(t, map[string]any{"query": "q3 budget v2"}, inv.calls[0].args)
	assert.Equal(t, map[string]any{"query": "budget"}, inv.calls[1].args)
	assert.Equal(t, "budget", out.Selection.Query)
}

func TestRun_RetryDefaultsToGenericQuery(t *testing.T) {
	inv := &recordingInvoker{results: []*mcp.CallResult{textResult(""), textResult("something")}}

	_, err := New(nil).Run(context.Background(), "zzz unmatched", "google-drive", driveTools(), inv.invoke)
	require.NoError(t, err)
	require.Len(t, inv.calls, 2)
	assert.Equal(t, map[string]any{"query": DefaultQuery}, inv.calls[1].args)
}

func TestRun_NoDataAfterOneRetry(t *testing.T) {
	inv := &recordingInvoker{results: []*mcp.CallResult{textResult("[]")}}

	out, err := New(nil).Run(context.Background(), "taxes", "google-drive", driveTools(), inv.invoke)
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 2, out.Attempts)
	assert.Len(t, inv.calls, 2)
}

func TestRun_NonSearchToolNotRetried(t *testing.T) {
	inv := &recordingInvoker{results: []*mcp.CallResult{textResult("{}")}}
	candidates := []mcp.ToolDescriptor{tool("slack", "list_channels", "")}

	out, err := New(nil).Run(context.Background(), "channels", "slack", candidates, inv.invoke)
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 1, out.Attempts)
}

func TestRun_RetriesConfigurable(t *testing.T) {
	inv := &recordingInvoker{results: []*mcp.CallResult{textResult("")}}

	_, err := New(nil, WithEmptyRetries(0)).Run(context.Background(), "taxes", "google-drive", driveTools(), inv.invoke)
	require.ErrorIs(t, err, ErrNoData)
	assert.Len(t, inv.calls, 1)

	inv = &recordingInvoker{results: []*mcp.CallResult{textResult("")}}
	_, err = New(nil, WithEmptyRetries(3)).Run(context.Background(), "taxes", "google-drive", driveTools(), inv.invoke)
	require.ErrorIs(t, err, ErrNoData)
	assert.Len(t, inv.calls, 4)
}

func TestRun_InvokeErrorPropagates(t *testing.T) {
	boom := &mcp.RPCError{Code: -32000, Message: "upstream 500"}
	inv := &recordingInvoker{err: boom}

	out, err := New(nil).Run(context.Background(), "taxes", "google-drive", driveTools(), inv.invoke)
	var rpcErr *mcp.RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Same(t, boom, rpcErr)
	assert.Equal(t, 1, out.Attempts)
}

func TestRun_NoCandidates(t *testing.T) {
	out, err := New(nil).Run(context.Background(), "x", "slack", nil, (&recordingInvoker{}).invoke)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Nil(t, out)
}
