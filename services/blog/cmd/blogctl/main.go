// Command blogctl runs operational tasks against the blog database:
// schema migrations and comment counter repair.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/db"
	"github.com/example/blog-platform/internal/platform/logging"
)

var (
	configPath  string
	databaseURL string
	logLevel    string
	jsonOutput  bool

	cfg  ctlConfig
	log  *zap.Logger
	pool *pgxpool.Pool
)

var rootCmd = &cobra.Command{
	Use:           "blogctl <command>",
	Short:         "Maintenance tool for the blog service database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("database-url") || cfg.DatabaseURL == "" {
			cfg.DatabaseURL = databaseURL
		}
		if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
			cfg.LogLevel = logLevel
		}
		log, err = logging.New(cfg.LogLevel, "blogctl")
		if err != nil {
			return err
		}
		pool, err = db.Open(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pool != nil {
			pool.Close()
		}
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("BLOGCTL_CONFIG"), "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(migrateCmd, sweepCmd, recountCmd)
}

// sqlDB exposes the pool through database/sql for the maintenance queries.
func sqlDB() *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
