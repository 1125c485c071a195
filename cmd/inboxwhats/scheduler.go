package main

import (
	"github.com/spf13/cobra"

	"inboxwhats/internal/scheduler"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Publish poll triggers and run digest batches every minute",
	Long: `Runs the two timers of the pipeline. Only one scheduler should run at a
time; a second instance would publish duplicate poll triggers (harmless) and
run each digest minute twice (the claim on each email still sends it once).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-scheduler", needs{mq: true})
		if err != nil {
			return err
		}
		defer a.Close()

		scheduler.New(a.publisher, a.batcher(), a.cfg.Scheduler(), a.logger).Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}
