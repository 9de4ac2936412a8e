package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Browse archived conversations",
	Long: `List archived conversations, or print one transcript when a session id
is given. Requires VICTOR_ARCHIVE_URL.

Examples:
  victor history
  victor history session-6f1c...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "max conversations to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()
	if store == nil {
		return fmt.Errorf("history: VICTOR_ARCHIVE_URL is not set")
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		msgs, err := store.Load(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load transcript: %w", err)
		}
		for _, m := range msgs {
			fmt.Fprintln(out, formatMessage(m))
		}
		return nil
	}

	list, err := store.List(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No archived conversations.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tMESSAGES\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.SessionID, s.MessageCount, s.Updated.Local().Format(time.DateTime))
	}
	return w.Flush()
}
