package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/server"
	"github.com/raphaelgruber/victor/internal/service"
	"github.com/raphaelgruber/victor/internal/speech"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatLineMode bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to Victor in the terminal",
	Long: `Start an interactive conversation. A full-screen interface is used when
stdin is a terminal; otherwise lines are read from stdin and replies are
printed as they finish.

Examples:
  victor chat
  echo "what is the capital of France" | victor chat
  VICTOR_LLM_PROVIDER=mock victor chat --lines`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatLineMode, "lines", false, "use line mode even on a terminal")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := sessionOptions(ctx, cfg, logger, metrics.NewCollector())
	if err != nil {
		return err
	}
	opts.Speaker = speech.New(cfg.TTSCommand, logger)

	store, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	interactive := !chatLineMode && term.IsTerminal(int(os.Stdin.Fd()))

	var runErr error
	var sess *service.Session
	if interactive {
		sess, runErr = runTUI(ctx, opts)
	} else {
		commandsOut := cmd.OutOrStdout()
		opts.OnCommand = func(r commands.Result) { printCommand(commandsOut, r) }
		sess = service.New(opts)
		runErr = runLines(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout())
	}
	if sess != nil {
		sess.Close()
		if store != nil {
			if err := store.Save(context.Background(), sess.ID(), sess.Messages()); err != nil {
				logger.Error("archive transcript", "error", err)
			}
		}
	}
	return runErr
}

func printCommand(w io.Writer, r commands.Result) {
	switch {
	case r.OpenURL != "":
		fmt.Fprintf(w, "-> open %s\n", r.OpenURL)
	case r.Action != "":
		fmt.Fprintf(w, "-> %s\n", r.Action)
	}
}

// runLines drives a session from a line-oriented reader.
func runLines(ctx context.Context, sess *service.Session, in io.Reader, out io.Writer) error {
	p := newPrinter(out, sess.Snapshot())
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		action, err := parseInput(sess.Snapshot(), scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if err := server.Dispatch(ctx, sess, action); err != nil {
			if !errors.Is(err, service.ErrEmptyUtterance) {
				fmt.Fprintf(out, "! %v\n", err)
			}
			continue
		}
		p.update(sess.Snapshot())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
