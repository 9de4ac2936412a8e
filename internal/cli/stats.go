package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/victor/internal/client"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/spf13/cobra"
)

var statsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show the in-memory statistics of a running server: active sessions and
timing for model calls, image generation, code execution and turns.

Examples:
  victor stats
  victor stats --server ws://10.0.0.5:8484/ws`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsServer, "server", "", "websocket URL (default VICTOR_SERVER_URL)")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := statsServer
	if endpoint == "" {
		endpoint = cfg.ServerURL
	}
	stats, err := client.New(endpoint).Stats(ctx)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(cmd.OutOrStdout(), stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *metrics.Snapshot) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)
	fmt.Fprintf(w, "Active sessions: %d\n", stats.ActiveSessions)

	ops := []struct {
		title string
		op    *metrics.OperationSnapshot
	}{
		{"Turns", stats.Turn},
		{"Chat Stream", stats.ChatStream},
		{"Completion", stats.Completion},
		{"Image Generation", stats.ImageGenerate},
		{"Code Execution", stats.CodeExecute},
		{"Archive Save", stats.ArchiveSave},
	}
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", o.title)
		printOpStats(w, o.op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.AvgChars != nil && op.MaxChars != nil {
		fmt.Fprintf(w, "  Output: avg %.0f chars, max %d chars\n", *op.AvgChars, *op.MaxChars)
	}
}
