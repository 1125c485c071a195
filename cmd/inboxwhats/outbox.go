package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"inboxwhats/pkg/outbox"
)

var (
	replayEventID int64
	replayLimit   int
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay outbox events",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish one outbox event, or every failed one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-outbox", needs{mq: true})
		if err != nil {
			return err
		}
		defer a.Close()

		replay := outbox.NewReplayService(a.repos.outbox, a.publisher, a.logger)
		if replayEventID > 0 {
			if err := replay.ReplayEvent(ctx, replayEventID); err != nil {
				return err
			}
			fmt.Printf("Replayed event %d.\n", replayEventID)
			return nil
		}

		n, err := replay.ReplayFailedEvents(ctx, replayLimit)
		fmt.Printf("Replayed %d failed event(s).\n", n)
		return err
	},
}

func init() {
	outboxReplayCmd.Flags().Int64Var(&replayEventID, "id", 0, "replay a single event by id")
	outboxReplayCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum failed events to replay")
	outboxCmd.AddCommand(outboxReplayCmd)
	rootCmd.AddCommand(outboxCmd)
}
