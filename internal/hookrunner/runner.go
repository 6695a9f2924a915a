// Package hookrunner executes hook matchers around routed tool calls.
package hookrunner

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/armatrix/toolhost/hook"
	"github.com/armatrix/toolhost/mcp"
)

const defaultTimeout = 30 * time.Second

// Runner executes hooks matched by event and qualified tool name.
type Runner struct {
	matchers []matcherEntry
}

type matcherEntry struct {
	event   hook.Event
	pattern string // empty = match all tools
	hooks   []hook.Func
	timeout time.Duration
}

// New creates a Runner from public Matcher definitions.
// Returns an error if any glob pattern is invalid.
func New(matchers []hook.Matcher) (*Runner, error) {
	entries := make([]matcherEntry, 0, len(matchers))
	for i, m := range matchers {
		if m.Pattern != "" && !doublestar.ValidatePattern(m.Pattern) {
			return nil, fmt.Errorf("matcher[%d]: invalid pattern %q: %w", i, m.Pattern, mcp.ErrInvalidConfig)
		}
		entry := matcherEntry{
			event:   m.Event,
			pattern: m.Pattern,
			hooks:   m.Hooks,
			timeout: m.Timeout,
		}
		if entry.timeout == 0 {
			entry.timeout = defaultTimeout
		}
		entries = append(entries, entry)
	}
	return &Runner{matchers: entries}, nil
}

// Len reports the number of matchers.
func (r *Runner) Len() int { return len(r.matchers) }

// RunPre runs the matching PreToolCall hooks and returns the arguments the
// call should use. A blocking hook yields a *hook.BlockedError.
func (r *Runner) RunPre(ctx context.Context, t mcp.ToolDescriptor, args map[string]any) (map[string]any, error) {
	res, err := r.run(ctx, &hook.Input{Event: hook.PreToolCall, Tool: t, Arguments: maps.Clone(args)})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return args, nil
	}
	if res.Block {
		return nil, &hook.BlockedError{Tool: t.QualifiedName, Reason: res.Reason}
	}
	if res.UpdatedArguments != nil {
		return res.UpdatedArguments, nil
	}
	return args, nil
}

// RunPost runs the matching PostToolCall hooks.
func (r *Runner) RunPost(ctx context.Context, t mcp.ToolDescriptor, args map[string]any, result *mcp.CallResult) error {
	_, err := r.run(ctx, &hook.Input{Event: hook.PostToolCall, Tool: t, Arguments: args, Result: result})
	return err
}

// RunFailure runs the matching ToolCallFailure hooks.
func (r *Runner) RunFailure(ctx context.Context, t mcp.ToolDescriptor, args map[string]any, callErr error) error {
	_, err := r.run(ctx, &hook.Input{Event: hook.ToolCallFailure, Tool: t, Arguments: args, Err: callErr})
	return err
}

func (r *Runner) run(ctx context.Context, input *hook.Input) (*hook.Result, error) {
	var combined *hook.Result

	for _, entry := range r.matchers {
		if entry.event != input.Event {
			continue
		}
		if entry.pattern != "" {
			if ok, _ := doublestar.Match(entry.pattern, input.Tool.QualifiedName); !ok {
				continue
			}
		}

		tctx, cancel := context.WithTimeout(ctx, entry.timeout)
		res, err := runHooks(tctx, entry.hooks, input)
		cancel()

		if err != nil {
			return combined, err
		}
		if res == nil {
			continue
		}
		if combined == nil {
			combined = &hook.Result{}
		}
		merge(combined, res)
		if combined.Block {
			break
		}
	}

	return combined, nil
}

// runHooks executes hooks in order, stopping early on a block or a
// cancelled context. Later hooks see arguments rewritten by earlier ones.
func runHooks(ctx context.Context, hooks []hook.Func, input *hook.Input) (*hook.Result, error) {
	var combined *hook.Result

	for _, fn := range hooks {
		if err := ctx.Err(); err != nil {
			return combined, err
		}

		res, err := fn(ctx, input)
		if err != nil {
			return combined, err
		}
		if res == nil {
			continue
		}
		if combined == nil {
			combined = &hook.Result{}
		}
		merge(combined, res)
		if combined.Block {
			return combined, nil
		}
		if res.UpdatedArguments != nil {
			input.Arguments = res.UpdatedArguments
		}
	}

	return combined, nil
}

func merge(dst, src *hook.Result) {
	if src.Block && !dst.Block {
		dst.Block = true
		dst.Reason = src.Reason
	}
	if src.UpdatedArguments != nil {
		dst.UpdatedArguments = src.UpdatedArguments
	}
}
