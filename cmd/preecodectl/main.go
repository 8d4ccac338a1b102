// Package main implements preecodectl, the operator CLI for the preecode
// backend. It talks to Postgres directly using the server's configuration.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"preecode/internal/platform/config"
	"preecode/internal/platform/database"
	"preecode/internal/platform/logger"
)

var (
	version = "dev"

	// commandTimeout bounds every database round trip a command makes.
	commandTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "preecodectl",
	Short: "Operator commands for the preecode backend",
	Long: `preecodectl runs maintenance tasks against the preecode database.

Configuration is read from .env and the environment, exactly like the server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 30*time.Second, "timeout for database operations")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(statsCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger only reports warnings and errors so command output stays clean.
func newLogger(cfg *config.Config) *zap.Logger {
	log, err := logger.New(cfg.AppEnv, "warn")
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func openDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := database.Connect(ctx, cfg.DBConnStr, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}
