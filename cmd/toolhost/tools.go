package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/mcp"
)

var toolsCmd = &cobra.Command{
	Use:   "tools [service]",
	Short: "Start authorized services and list their tools",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTools,
}

var callCmd = &cobra.Command{
	Use:   "call <tool> [json-arguments]",
	Short: "Call a tool by short or qualified (service.tool) name",
	Example: `  toolhost call filesystem.list_directory '{"path": "."}'
  toolhost call search '{"query": "quarterly report"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

var rawOutput bool

func init() {
	callCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print the raw JSON-RPC result")
}

func runTools(cmd *cobra.Command, args []string) error {
	h, err := newHost()
	if err != nil {
		return err
	}
	defer h.Close()

	var tools []mcp.ToolDescriptor
	if len(args) == 1 {
		id, _ := auth.Canonical(args[0])
		if _, err := h.Connect(cmd.Context(), id); err != nil {
			return err
		}
		tools = h.ToolsForServer(string(id))
	} else {
		if _, err := h.ConnectAll(cmd.Context()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
		}
		tools = h.Tools()
	}
	return printTools(cmd.OutOrStdout(), tools)
}

func printTools(out io.Writer, tools []mcp.ToolDescriptor) error {
	if jsonOutput {
		return writeJSON(out, tools)
	}
	if len(tools) == 0 {
		fmt.Fprintln(out, "No tools available. Run 'toolhost servers' to check service authorization.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", t.QualifiedName, firstLine(t.Description))
	}
	return w.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if r := []rune(line); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return line
}

func runCall(cmd *cobra.Command, args []string) error {
	var toolArgs map[string]any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	h, err := newHost()
	if err != nil {
		return err
	}
	defer h.Close()

	// A qualified name needs only its own service.
	if server, _, err := mcp.ParseQualifiedName(args[0]); err == nil {
		if _, err := h.Connect(cmd.Context(), auth.ServiceID(server)); err != nil {
			return err
		}
	} else if _, err := h.ConnectAll(cmd.Context()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
	}

	res, err := h.Call(cmd.Context(), args[0], toolArgs)
	if err != nil {
		return err
	}
	switch {
	case rawOutput:
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(res.Raw))
	case jsonOutput:
		err = writeJSON(cmd.OutOrStdout(), res)
	default:
		_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text())
	}
	if err != nil {
		return err
	}
	if res.IsError {
		return fmt.Errorf("tool %s reported an error", args[0])
	}
	return nil
}
