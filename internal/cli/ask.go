package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/service"
	"github.com/raphaelgruber/victor/internal/speech"
	"github.com/spf13/cobra"
)

var askSpeak bool

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send one utterance and print the reply",
	Long: `Run a single turn against a fresh session and print what it produced.
Local commands, image requests and code execution behave as in chat.

Examples:
  victor ask "What is the tallest mountain on Earth?"
  victor ask "draw a lighthouse at dusk"
  victor ask "get directions to the train station"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSpeak, "speak", false, "speak the reply with the configured TTS command")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := sessionOptions(ctx, cfg, logger, metrics.NewCollector())
	if err != nil {
		return err
	}
	opts.AutoSpeak = false
	out := cmd.OutOrStdout()
	opts.OnCommand = func(r commands.Result) { printCommand(out, r) }

	sess := service.New(opts)
	defer sess.Close()

	before := len(sess.Messages())
	if err := sess.Handle(ctx, strings.Join(args, " ")); err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	msgs := sess.Messages()
	for _, m := range msgs[before:] {
		fmt.Fprintln(out, formatMessage(m))
	}
	if game := formatGame(sess.Snapshot().Game); game != "" {
		fmt.Fprintln(out, game)
	}

	if askSpeak && len(msgs) > before {
		return speakLast(ctx, msgs[len(msgs)-1])
	}
	return nil
}

// speakLast plays a message synchronously so the process does not exit mid-sentence.
func speakLast(ctx context.Context, m models.Message) error {
	synth := speech.NewCommandSynth(cfg.TTSCommand)
	if synth == nil {
		return fmt.Errorf("speak: VICTOR_TTS_COMMAND is not set")
	}
	if err := synth.Speak(ctx, m.Content); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}
