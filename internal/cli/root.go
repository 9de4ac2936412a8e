// Package cli provides the command-line interface for victor.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/victor/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	cfg           config.Config
	logger        *slog.Logger
	loggerCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "victor",
	Short: "Conversational assistant with mini-games",
	Long: `Victor is a conversational assistant. Text goes to a streaming language
model, a few phrases are answered locally, "draw ..." requests produce
images, and the model can start tic-tac-toe, a word game, Moner Kotha or
the mind reader trick.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, loggerCleanup = config.SetupLogger(config.LogOptions{
			File:        cfg.LogFile,
			Level:       cfg.LogLevel,
			Interactive: cmd.Name() == chatCmd.Name(),
		})
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if loggerCleanup != nil {
			if err := loggerCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
}
