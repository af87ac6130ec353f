// trackersyncd is the binary that runs the reconciliation engine: a
// "serve" command that polls both trackers forever, and a "migrate"
// command that brings the database schema up to date. Grounded on
// docket/cmd/docket/root.go's rootCmd + PersistentPreRunE/Execute()
// pattern, since no main.go/root command was retrieved from either the
// teacher (orchid) or meadow-test (whose go.mod lists cobra but never
// uses it directly in any retrieved file).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"

	"github.com/trackersync/trackersync/internal/config"
	"github.com/trackersync/trackersync/internal/startup"
)

type contextKey string

const (
	cfgKey    contextKey = "cfg"
	loggerKey contextKey = "logger"
)

var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:     "trackersyncd",
	Short:   "Bidirectional issue-tracker reconciliation engine",
	Version: fmt.Sprintf("%s (commit %s)", version, commit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; environment variables set by the deployment
		// platform always take precedence regardless of whether it exists.
		_ = godotenv.Load()

		cfg := &config.Config{}
		if err := ectoenv.BindEnv(cfg); err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := startup.NewLogger(cfg)

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)
		ctx = context.WithValue(ctx, loggerKey, logger)
		cmd.SetContext(ctx)
		return nil
	},
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func getConfig(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getLogger(cmd *cobra.Command) ectologger.Logger {
	logger, _ := cmd.Context().Value(loggerKey).(ectologger.Logger)
	return logger
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
