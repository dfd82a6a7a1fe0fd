package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/pflag"

	"assistant-router/internal/critique"
	"assistant-router/internal/document"
	"assistant-router/internal/provider"
	"assistant-router/internal/router"
)

const askUsage = `Usage:
  assistant-router ask --prompt <text> [flags] < selection.txt

Reads the selection from stdin, runs the prompt against it and prints the
resulting text. With --critique the command waits for the critique.

Flags:
  --config string           Path to YAML configuration file
  --prompt string           Instruction applied to the selection (required)
  --model string            Model override
  --critique                Append a critique of the answer
  --critique-model string   Critique model override
  --stream                  Print the answer as it arrives`

// noticeTarget echoes notices to w in addition to recording them.
type noticeTarget struct {
	*document.Document
	w io.Writer
}

func (t noticeTarget) Notify(message string) {
	t.Document.Notify(message)
	fmt.Fprintln(t.w, message)
}

func ask(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	return runAsk(ctx, args, stdin, stdout, stderr, nil)
}

func runAsk(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, sched critique.Scheduler) error {
	fs := pflag.NewFlagSet("ask", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, askUsage)
	}

	cfgPath := fs.String("config", "", "path to configuration file")
	prompt := fs.String("prompt", "", "instruction applied to the selection")
	model := fs.String("model", "", "model override")
	withCritique := fs.Bool("critique", false, "append a critique of the answer")
	critiqueModel := fs.String("critique-model", "", "critique model override")
	streamOut := fs.Bool("stream", false, "print the answer as it arrives")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse ask flags: %w", err)
	}
	if strings.TrimSpace(*prompt) == "" {
		return errors.New("ask command requires --prompt <text>")
	}
	if *streamOut && *withCritique {
		return errors.New("--stream cannot be combined with --critique")
	}

	cfg, closer, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	input, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read selection: %w", err)
	}
	selection := string(input)

	doc := document.New(selection, document.Selection{From: 0, To: utf8.RuneCountInString(selection)})
	defer doc.Close()
	target := noticeTarget{Document: doc, w: stderr}

	req := critique.Request{
		Prompt:        *prompt,
		Selection:     selection,
		Model:         *model,
		CritiqueModel: *critiqueModel,
		Critique:      *withCritique,
	}
	if *streamOut {
		req.Sink = func(fragment, _ string) {
			fmt.Fprint(stdout, fragment)
		}
	}

	orch := critique.New(router.New(provider.NewHTTPClient()), sched)
	task, err := orch.Run(ctx, req, cfg.Snapshot(), target)
	if err != nil {
		return err
	}

	var waitErr error
	if *withCritique {
		// A failed critique leaves the primary answer in place and has
		// already been reported through the notices.
		if waitErr = task.Wait(ctx); waitErr != nil && ctx.Err() == nil {
			slog.Warn("critique failed", "task", task.ID, "err", waitErr)
			waitErr = nil
		}
	}

	if *streamOut {
		fmt.Fprintln(stdout)
		return nil
	}
	fmt.Fprintln(stdout, doc.View().Text)
	return waitErr
}
