package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/db"
	"github.com/example/blog-platform/services/blog/internal/maintenance"
	"github.com/example/blog-platform/services/blog/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.Migrate(pool, store.Migrations, "migrations"); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		log.Info("migrations applied")
		return printResult(map[string]string{"status": "ok"}, "Schema is up to date")
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-orphans",
	Short: "Delete replies whose parent comment no longer exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration)
		defer cancel()

		m := maintenance.Maintainer{DB: sqlDB(), Log: log}
		defer m.DB.Close()
		n, err := m.SweepOrphans(ctx)
		if err != nil {
			return fmt.Errorf("sweeping orphans: %w", err)
		}
		return printResult(map[string]int{"removed": n}, fmt.Sprintf("Removed %d orphaned replies", n))
	},
}

var recountAll bool

var recountCmd = &cobra.Command{
	Use:   "recount [post_id]",
	Short: "Recompute comment counters from the comment rows",
	Args: func(cmd *cobra.Command, args []string) error {
		if recountAll && len(args) > 0 {
			return errors.New("--all takes no post id")
		}
		if !recountAll && len(args) != 1 {
			return errors.New("need exactly one post id, or --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout.Duration)
		defer cancel()

		m := maintenance.Maintainer{DB: sqlDB(), Log: log}
		defer m.DB.Close()
		if recountAll {
			n, err := m.RecountAll(ctx)
			if err != nil {
				return fmt.Errorf("recounting: %w", err)
			}
			return printResult(map[string]int64{"updated": n}, fmt.Sprintf("Recounted %d posts", n))
		}

		id := store.PostID(args[0])
		a, err := m.Recount(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("post %s not found", id)
			}
			return fmt.Errorf("recounting %s: %w", id, err)
		}
		log.Debug("recounted", zap.String("post_id", id.String()))
		return printResult(a, fmt.Sprintf("%s: %d comments, %d top-level", id, a.TotalComments, a.TotalParentComments))
	},
}

func init() {
	recountCmd.Flags().BoolVar(&recountAll, "all", false, "recount every post")
}

func printResult(v any, text string) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(text)
	return nil
}
