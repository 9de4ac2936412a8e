package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/server"
	"github.com/spf13/cobra"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over a websocket",
	Long: `Start the websocket server. Each connection to /ws gets its own session.
/health reports liveness and /stats the in-memory runtime statistics.
When VICTOR_ARCHIVE_URL is set, transcripts are archived on disconnect.

Examples:
  victor serve
  victor serve --port 9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default VICTOR_SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	opts, err := sessionOptions(ctx, cfg, logger, collector)
	if err != nil {
		return err
	}
	// Speech belongs to the connected client, not the server host.
	opts.AutoSpeak = false

	store, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	srvOpts := server.Options{
		Session: opts,
		Metrics: collector,
		Logger:  logger,
	}
	if store != nil {
		srvOpts.Archive = store
	}

	port := servePort
	if port == "" {
		port = cfg.ServerPort
	}
	logger.Info("starting victor server", "version", Version, "port", port, "llm_provider", cfg.LLMProvider)
	return server.New(srvOpts).Run(ctx, ":"+port)
}
