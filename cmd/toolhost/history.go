package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/armatrix/toolhost/session"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "List recorded sessions, or show the answers of one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var deleteSession bool

func init() {
	historyCmd.Flags().BoolVar(&deleteSession, "delete", false, "Delete the named session")
}

func runHistory(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := sessionStore(settings)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) == 0 {
		if deleteSession {
			return fmt.Errorf("--delete needs a session id")
		}
		list, err := store.List(ctx)
		if err != nil {
			return err
		}
		return printSessions(cmd.OutOrStdout(), list)
	}

	if deleteSession {
		return store.Delete(ctx, args[0])
	}
	s, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}
	return printSession(cmd.OutOrStdout(), s)
}

func printSessions(out io.Writer, list []*session.Session) error {
	if jsonOutput {
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tUPDATED\tANSWERS\tTOKENS\tFIRST QUESTION")
	for _, s := range list {
		first := ""
		if len(s.Answers) > 0 {
			first = firstLine(s.Answers[0].Question)
		}
		u := s.Usage()
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.UpdatedAt.Local().Format(time.DateTime), len(s.Answers), u.InputTokens+u.OutputTokens, first)
	}
	return w.Flush()
}

func printSession(out io.Writer, s *session.Session) error {
	if jsonOutput {
		return writeJSON(out, s)
	}
	for i, a := range s.Answers {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Q [%s]: %s\n", a.Category, a.Question)
		if a.Tool != "" {
			fmt.Fprintf(out, "(via %s)\n", a.Tool)
		}
		fmt.Fprintln(out, a.Text)
	}
	return nil
}
