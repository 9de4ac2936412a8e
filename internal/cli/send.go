package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/victor/internal/client"
	"github.com/spf13/cobra"
)

var (
	sendServer  string
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one utterance to a running server",
	Long: `Open a session on a running victor server, send one utterance and print
the messages it produced.

Examples:
  victor send "hello"
  victor send --server ws://10.0.0.5:8484/ws "search for gophers"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendServer, "server", "", "websocket URL (default VICTOR_SERVER_URL)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 2*time.Minute, "give up after this long")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	endpoint := sendServer
	if endpoint == "" {
		endpoint = cfg.ServerURL
	}

	reply, err := client.New(endpoint).Say(ctx, strings.Join(args, " "), nil)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, m := range reply.Messages {
		fmt.Fprintln(out, formatMessage(m))
	}
	for _, c := range reply.Commands {
		if c.OpenURL != "" {
			fmt.Fprintf(out, "-> open %s\n", c.OpenURL)
		} else if c.Action != "" {
			fmt.Fprintf(out, "-> %s\n", c.Action)
		}
	}
	if game := formatGame(reply.Final.Game); game != "" {
		fmt.Fprintln(out, game)
	}
	return nil
}
