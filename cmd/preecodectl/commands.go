package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"preecode/internal/app/service"
	"preecode/internal/common/security"
	"preecode/internal/domain/repository"
	"preecode/internal/platform/database"
)

var (
	tokenUserID string
	statsUserID string
	statsPretty bool
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id to mint a token for (required)")
	_ = tokenCmd.MarkFlagRequired("user")

	statsCmd.Flags().StringVar(&statsUserID, "user", "", "user id to compute stats for (required)")
	statsCmd.Flags().BoolVar(&statsPretty, "pretty", true, "indent the JSON output")
	_ = statsCmd.MarkFlagRequired("user")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long: `Create the users, submissions and practice_sessions tables and their
indexes. Every statement is idempotent, so running it twice is safe.

Examples:
  preecodectl migrate`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a session token for a user",
	Long: `Mint a session token signed with JWT_SECRET for an existing user.
Useful for exercising the API by hand.

Examples:
  preecodectl token --user 3f2b8c1e-5d4a-4b6f-9e2d-1a2b3c4d5e6f`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute and print a user's stats view",
	Long: `Compute the statistics view for a user straight from Postgres, bypassing
the cache, and print it as JSON.

Examples:
  preecodectl stats --user 3f2b8c1e-5d4a-4b6f-9e2d-1a2b3c4d5e6f`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	log := newLogger(cfg)
	defer log.Sync()

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := database.Migrate(ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d schema statements\n", n)
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	log := newLogger(cfg)
	defer log.Sync()

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := repository.NewPgUserRepository(db).FindByID(ctx, tokenUserID)
	if err != nil {
		return fmt.Errorf("find user %s: %w", tokenUserID, err)
	}
	issued, err := security.NewTokenIssuer(cfg.JWTKey, cfg.JWTExp).Issue(user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), issued.Token)
	fmt.Fprintf(cmd.ErrOrStderr(), "user %s (%s), expires %s\n", user.Username, user.Email, issued.ExpiresAt.Format("2006-01-02 15:04 MST"))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	log := newLogger(cfg)
	defer log.Sync()

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := service.NewStatsService(
		repository.NewPgUserRepository(db),
		repository.NewPgSubmissionRepository(db),
		repository.NewPgPracticeRepository(db),
		nil, log,
	)
	view, err := svc.Compute(ctx, statsUserID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if statsPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(view)
}
