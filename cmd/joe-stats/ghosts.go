package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newGhostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghosts",
		Short: "Inspect the raw visit log",
	}
	cmd.AddCommand(newGhostsListCmd())
	return cmd
}

func newGhostsListCmd() *cobra.Command {
	var (
		websiteID int64
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent visits for a website",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, log, b, err := loadAndOpen(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer b.Close()

			if b.sqlGhosts == nil {
				return fmt.Errorf("ghosts list reads the SQL log; JOE_STATS_GHOSTS_BACKEND is %q", cfg.Ghosts.Backend)
			}
			ghosts, err := b.sqlGhosts.ListByWebsite(ctx, websiteID, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, ghosts)
		},
	}
	cmd.Flags().Int64Var(&websiteID, "website", 0, "website id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of visits")
	_ = cmd.MarkFlagRequired("website")
	return cmd
}
