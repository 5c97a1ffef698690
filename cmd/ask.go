package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sheetsage/sheetsage/internal/client"
	"github.com/sheetsage/sheetsage/internal/config"
	"github.com/sheetsage/sheetsage/internal/stream"
	"github.com/sheetsage/sheetsage/internal/viz"
)

var (
	askFlagChat    int64
	askFlagDataset int64
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&askFlagChat, "chat", 0, "continue an existing chat by id")
	askCmd.Flags().Int64Var(&askFlagDataset, "dataset", 0, "pin the question to one dataset by id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req := client.AskRequest{Question: strings.Join(args, " ")}
	if askFlagChat > 0 {
		req.ChatID = &askFlagChat
	}
	if askFlagDataset > 0 {
		req.DatasetID = &askFlagDataset
	}

	svc := client.New(cfg.APIBaseURL, logger)
	sink := &consoleSink{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	session := stream.NewSession(sink, logger)

	body, err := svc.Ask(ctx, req)
	if err != nil {
		session.FailTransport(err)
	} else {
		defer func() { _ = body.Close() }()
		session.Consume(ctx, body, stream.FramingSSE)
	}

	if sink.failed {
		return errors.New("question failed")
	}
	return nil
}

// askTableRows caps how many result rows the one-shot command prints.
const askTableRows = 20

// consoleSink renders a stream to plain stdout. Tokens are printed as they
// arrive; the full answer text accumulates in the session, so only the
// unprinted suffix is written on each callback.
type consoleSink struct {
	out     io.Writer
	errOut  io.Writer
	printed int
	failed  bool
}

var _ stream.Sink = (*consoleSink)(nil)

func (s *consoleSink) ShowVisualization(meta *stream.Metadata, plan viz.Plan) {
	if len(meta.Rows) == 0 || plan.Kind == viz.KindNone {
		return
	}
	fmt.Fprintln(s.out, renderResultTable(meta))
	fmt.Fprintln(s.out)
}

func (s *consoleSink) ShowAnswer(text string, streaming bool) {
	if len(text) > s.printed {
		fmt.Fprint(s.out, text[s.printed:])
		s.printed = len(text)
	}
	if !streaming {
		fmt.Fprintln(s.out)
	}
}

func (s *consoleSink) ShowError(message string, transport bool) {
	s.failed = true
	fmt.Fprintln(s.errOut, "Error:", message)
}

func (s *consoleSink) Finish(elapsedSeconds float64) {
	fmt.Fprintf(s.out, "(answered in %.1fs)\n", elapsedSeconds)
}

// renderResultTable prints the result set the same way the chat view does,
// capped so huge results stay readable in a pipe.
func renderResultTable(meta *stream.Metadata) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)

	header := make(table.Row, len(meta.Columns))
	for i, col := range meta.Columns {
		header[i] = viz.FormatLabel(col)
	}
	w.AppendHeader(header)

	shown := min(len(meta.Rows), askTableRows)
	for _, row := range meta.Rows[:shown] {
		cells := make(table.Row, len(meta.Columns))
		for i, col := range meta.Columns {
			cells[i] = viz.FormatCell(row[col], col)
		}
		w.AppendRow(cells)
	}

	out := w.Render()
	if rest := len(meta.Rows) - shown; rest > 0 {
		out += fmt.Sprintf("\n(%d more rows)", rest)
	}
	return out
}
