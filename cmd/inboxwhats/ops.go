package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	schema "inboxwhats/internal/db"
	"inboxwhats/pkg/trace"
)

var digestAt string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-migrate", needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		return schema.Migrate(ctx, a.pool, a.logger)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the fixed category catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-seed", needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		return a.categorizer(a.llmClient()).SeedCategories(ctx)
	},
}

var pollOnceCmd = &cobra.Command{
	Use:   "poll-once",
	Short: "Run a single poll cycle in-process, bypassing the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := trace.Ensure(cmd.Context())
		a, err := newApp(ctx, "inboxwhats-poll", needs{redis: true})
		if err != nil {
			return err
		}
		defer a.Close()

		return a.poller().PollCycle(ctx)
	},
}

var digestOnceCmd = &cobra.Command{
	Use:   "digest-once",
	Short: "Run a single digest batch cycle",
	Long: `Runs the digest batcher once for the current minute, or for the HH:MM
given with --at (today, local time).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		if digestAt != "" {
			t, err := time.ParseInLocation("15:04", digestAt, time.Local)
			if err != nil {
				return fmt.Errorf("--at must be HH:MM: %w", err)
			}
			now = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.Local)
		}

		ctx := trace.Ensure(cmd.Context())
		a, err := newApp(ctx, "inboxwhats-digest", needs{})
		if err != nil {
			return err
		}
		defer a.Close()

		sent, err := a.batcher().BatchCycle(ctx, now)
		fmt.Printf("Sent %d digest(s) for %s.\n", sent, now.Format("Mon 15:04"))
		return err
	},
}

func init() {
	digestOnceCmd.Flags().StringVar(&digestAt, "at", "", "run as if the local time were HH:MM")
	rootCmd.AddCommand(migrateCmd, seedCmd, pollOnceCmd, digestOnceCmd)
}
