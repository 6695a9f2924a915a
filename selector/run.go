package selector

import (
	"context"
	"fmt"

	"github.com/armatrix/toolhost/mcp"
)

// Invoker calls a tool. *mcp.Manager's CallTool satisfies it.
type Invoker func(ctx context.Context, tool mcp.ToolDescriptor, args map[string]any) (*mcp.CallResult, error)

// Outcome is the result of Run.
type Outcome struct {
	Selection Selection
	Result    *mcp.CallResult
	Attempts  int
}

// Run selects a tool, calls it, and retries search-style tools with a
// broader query while the result is empty. The returned Outcome is always
// populated with the last attempt; ErrNoData is returned when no attempt
// produced data. Invoker errors are returned unchanged.
func (s *Selector) Run(ctx context.Context, question, service string, candidates []mcp.ToolDescriptor, invoke Invoker) (*Outcome, error) {
	sel, err := s.Select(ctx, question, service, candidates)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Selection: sel}

	args := sel.Arguments
	for {
		out.Attempts++
		res, err := invoke(ctx, sel.Tool, args)
		if err != nil {
			return out, err
		}
		out.Result = res
		if !res.Empty() {
			return out, nil
		}
		if out.Attempts > s.emptyRetries || !IsSearchTool(sel.Tool.Name) {
			return out, fmt.Errorf("%w from %s", ErrNoData, sel.Tool.QualifiedName)
		}

		retry := sel.RetryQuery
		if retry == "" || retry == sel.Query {
			retry = DefaultQuery
		}
		s.logger.Debug("empty result, retrying",
			"tool", sel.Tool.QualifiedName, "query", sel.Query, "retry_query", retry)
		args = Arguments(sel.Tool, retry)
		sel.Query = retry
		out.Selection = sel
	}
}
