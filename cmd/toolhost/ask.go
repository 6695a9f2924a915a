package main

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/armatrix/toolhost"
	"github.com/armatrix/toolhost/answer"
	"github.com/armatrix/toolhost/llm"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question, consulting a connected service when the category needs one",
	Long: `Answer a question. The category selects the answer strategy; service categories
(drive, github, slack, notion, filesystem) retrieve data through that service's tools.

With --batch, questions are read one per line from stdin and answered concurrently.
Answers are recorded in a session; --session continues an earlier one.`,
	Example: `  toolhost ask --category drive "What changed in the Q3 planning doc?"
  toolhost ask --category code --image screenshot.png "Fix the error shown"
  printf 'What is a mutex?\nWhat is a channel?\n' | toolhost ask --batch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

var (
	askCategory string
	askImage    string
	askBatch    bool
	askSession  string
)

func init() {
	askCmd.Flags().StringVarP(&askCategory, "category", "c", string(answer.CategoryGeneral), "Question category")
	askCmd.Flags().StringVar(&askImage, "image", "", "Screenshot to send with the question")
	askCmd.Flags().BoolVar(&askBatch, "batch", false, "Read questions from stdin, one per line")
	askCmd.Flags().StringVar(&askSession, "session", "", "Continue the session with this id")
}

func runAsk(cmd *cobra.Command, args []string) error {
	questions, err := askQuestions(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := sessionStore(settings)
	if err != nil {
		return err
	}
	opts := []toolhost.Option{toolhost.WithSessionStore(store)}
	if askSession != "" {
		opts = append(opts, toolhost.WithSessionID(askSession))
	}

	h, err := newHost(opts...)
	if err != nil {
		return err
	}
	defer h.Close()

	answers, err := h.AskBatch(cmd.Context(), questions)
	for _, a := range answers {
		if a != nil {
			if perr := printAnswer(cmd.OutOrStdout(), cmd.ErrOrStderr(), a, len(answers) > 1); perr != nil {
				return perr
			}
		}
	}
	if spend, ok := h.Spend(); ok && !spend.IsZero() {
		fmt.Fprintf(cmd.ErrOrStderr(), "[spend] $%s\n", spend.StringFixed(4))
	}
	if current := h.Session(); current != nil && len(current.Answers) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "[session] %s\n", current.ID)
	}
	return err
}

func askQuestions(args []string, stdin io.Reader) ([]answer.Question, error) {
	category := answer.Category(strings.ToLower(askCategory))

	var image *llm.Image
	if askImage != "" {
		data, err := os.ReadFile(askImage)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(askImage)))
		if !strings.HasPrefix(mediaType, "image/") {
			return nil, fmt.Errorf("unsupported image type %q", filepath.Ext(askImage))
		}
		image = &llm.Image{MediaType: mediaType, Data: data}
	}

	var texts []string
	if askBatch {
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	if len(args) == 1 {
		texts = append(texts, args[0])
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no question given")
	}

	questions := make([]answer.Question, len(texts))
	for i, text := range texts {
		questions[i] = answer.Question{Text: text, Category: category, Image: image}
	}
	return questions, nil
}

func printAnswer(out, notes io.Writer, a *answer.Answer, numbered bool) error {
	if jsonOutput {
		return writeJSON(out, a)
	}
	if numbered {
		fmt.Fprintf(out, "Q: %s\n", a.Question)
	}
	fmt.Fprintln(out, a.Text)
	if a.Notice != "" {
		fmt.Fprintf(notes, "[note] %s\n", a.Notice)
	}
	if a.Tool != "" {
		fmt.Fprintf(notes, "[source] %s\n", a.Tool)
	}
	if numbered {
		fmt.Fprintln(out)
	}
	return nil
}
