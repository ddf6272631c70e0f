package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joestump/joe-stats/internal/store"
)

func newWebsitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websites",
		Short: "Provision and inspect websites",
	}
	cmd.AddCommand(newWebsitesAddCmd())
	cmd.AddCommand(newWebsitesShowCmd())
	cmd.AddCommand(newPagesShowCmd())
	return cmd
}

func newWebsitesAddCmd() *cobra.Command {
	var (
		id       int64
		userID   int64
		hostname string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a website so its beacons are counted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id <= 0 || userID <= 0 || hostname == "" {
				return errors.New("--id, --user, and --hostname are required")
			}
			ctx := context.Background()
			_, log, b, err := loadAndOpen(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer b.Close()

			w, err := b.aggregates.CreateWebsite(ctx, id, userID, hostname)
			if errors.Is(err, store.ErrWebsiteExists) {
				return fmt.Errorf("website %d already exists", id)
			}
			if err != nil {
				return err
			}
			log.Info("website added", "website_id", w.ID, "user_id", w.UserID, "hostname", w.Hostname)
			return printJSON(cmd, w)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "website id")
	cmd.Flags().Int64Var(&userID, "user", 0, "owning user id")
	cmd.Flags().StringVar(&hostname, "hostname", "", "website hostname")
	return cmd
}

func newWebsitesShowCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a website's counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, log, b, err := loadAndOpen(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer b.Close()

			w, err := b.aggregates.GetWebsite(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("website %d not found", id)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "website id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newPagesShowCmd() *cobra.Command {
	var pathname string
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Print the counters of a page by pathname",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, log, b, err := loadAndOpen(ctx)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer b.Close()

			p, err := b.aggregates.GetPage(ctx, pathname)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("page %q not found", pathname)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
	cmd.Flags().StringVar(&pathname, "pathname", "", "page pathname, e.g. /blog")
	_ = cmd.MarkFlagRequired("pathname")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
