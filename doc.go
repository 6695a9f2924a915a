// Package toolhost lets an AI client use capabilities hosted in
// independent stdio tool servers, each gated by its own authorization.
//
// A [Host] wires the pieces together:
//
//   - an [mcp.Supervisor] owns one child process per tool server and speaks
//     newline-delimited JSON-RPC 2.0 on its pipes;
//   - an [auth.Tracker] keeps the authorization state of every service and
//     launches its server once a valid token exists;
//   - an [mcp.Manager] routes calls over the unified tool catalog;
//   - an [answer.Orchestrator] answers questions, letting a [selector.Selector]
//     pick the tool whose data grounds the answer.
//
// # Quick Start
//
//	h, err := toolhost.New(
//	    toolhost.WithSettingSources(toolhost.DefaultSettingsPaths(".")...),
//	    toolhost.WithCredentials(creds),
//	)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	ans, err := h.Ask(ctx, answer.Question{Text: "What's in my Q3 planning doc?", Category: answer.CategoryDrive})
//
// # Sub-packages
//
//   - [mcp] provides the supervisor, wire protocol, router and tool policy.
//   - [mcp/mcptest] provides an in-process tool server for tests.
//   - [auth] provides the authorization tracker and service ids.
//   - [llm] provides the completion interface and the Anthropic client.
//   - [selector] provides tool selection with a heuristic fallback.
//   - [answer] provides the answer orchestrator.
//   - [hook] provides hook types for intercepting tool calls.
//   - [plugin] loads service packs from directories.
//   - [session] records answers for later review.
package toolhost
