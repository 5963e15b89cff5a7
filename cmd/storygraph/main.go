// Command storygraph extracts knowledge graphs from novel chapters and
// maintains the extraction cache.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/internal/config"

	"github.com/spf13/cobra"
)

// cfg is loaded before any subcommand runs.
var (
	cfg   *config.Config
	flush = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "storygraph",
	Short: "Extract knowledge graphs from novel chapters",
	Long: `storygraph splits chapters into overlapping windows, asks a language model
for the entities and relationships of each window under a schema, merges the
partial graphs and caches the result under a content hash.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env")
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		c, err := config.Load(files...)
		if err != nil {
			return err
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			c.Log.Debug = true
		}
		cfg = c
		flush = app.InitLogger(cfg.Log, "")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		flush()
	},
}

func init() {
	rootCmd.PersistentFlags().String("env", "", ".env file to load before reading the environment")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

// openApp builds the pipeline for commands that need it.
func openApp(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	return app.New(cmd.Context(), cfg, opts)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
