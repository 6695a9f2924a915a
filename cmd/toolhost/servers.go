package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/armatrix/toolhost/auth"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Show the authorization state of every configured service",
	RunE:  runServers,
}

var startServers bool

func init() {
	serversCmd.Flags().BoolVar(&startServers, "start", false, "Start every authorized service")
}

func runServers(cmd *cobra.Command, _ []string) error {
	h, err := newHost()
	if err != nil {
		return err
	}
	defer h.Close()

	var statuses []auth.Status
	if startServers {
		statuses, err = h.ConnectAll(cmd.Context())
	} else {
		statuses, err = h.Services(cmd.Context())
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
	}
	return printStatuses(cmd.OutOrStdout(), statuses)
}

func printStatuses(out io.Writer, statuses []auth.Status) error {
	if jsonOutput {
		return writeJSON(out, statuses)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No services configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATE\tCLIENT\tTOKEN\tRUNNING\tLAST ERROR")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Service, st.State, mark(st.HasClientCredentials), mark(st.HasValidToken), mark(st.ServerRunning), st.LastError)
	}
	return w.Flush()
}

func mark(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
