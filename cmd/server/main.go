package main

import (
	"log/slog"
	"os"

	"jukwaa/internal/config"
	"jukwaa/internal/db"

	"github.com/spf13/cobra"
)

var (
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "jukwaa",
		Short: "Civic forum engagement and moderation service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			slog.SetDefault(newLogger(cfg))
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			return db.Migrate(conn)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "event", "command_failed", "module", "main", "error", err.Error())
		os.Exit(1)
	}
}

// newLogger writes JSON in production and readable text elsewhere.
func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
