package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mqcontracts "inboxwhats/contracts/mq"
	"inboxwhats/internal/mqhandler"
	"inboxwhats/pkg/mq"
	"inboxwhats/pkg/outbox"
	"inboxwhats/pkg/util"
)

const retryCounterTTL = time.Hour

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume poll and dispatch tasks and relay the outbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := newApp(ctx, "inboxwhats-worker", needs{mq: true, redis: true})
		if err != nil {
			return err
		}
		defer a.Close()

		pollHandler := mqhandler.NewPollHandler(a.poller(), a.logger)
		dispatchHandler := mqhandler.NewDispatchHandler(
			a.dispatcher(),
			util.NewRetryCounter(a.rdb, retryCounterTTL),
			a.logger,
		)

		consumers := []struct {
			queue, routingKey string
			handler           mq.MessageHandler
		}{
			{mqcontracts.QueuePollEmails, mqcontracts.RoutingPollEmails, pollHandler.Handle},
			{mqcontracts.QueueDispatchNotification, mqcontracts.RoutingDispatchNotification, dispatchHandler.Handle},
		}

		var wg sync.WaitGroup
		for _, c := range consumers {
			a.logger.Info("Initializing consumer", zap.String("queue", c.queue))
			consumer, err := mq.NewConsumer(a.cfg.MQ.URL, c.queue, c.routingKey, a.cfg.MQ.Prefetch, a.logger)
			if err != nil {
				return err
			}
			defer consumer.Close()
			consumer.SetHandler(c.handler)

			wg.Add(1)
			go func(queue string) {
				defer wg.Done()
				if err := consumer.StartConsuming(ctx); err != nil {
					a.logger.Error("Consumer stopped", zap.String("queue", queue), zap.Error(err))
					cancel()
				}
			}(c.queue)
		}

		relay := outbox.NewDispatcher(a.repos.outbox, a.publisher, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Start(ctx)
		}()

		a.logger.Info("All consumers started, worker is ready to process messages")
		<-ctx.Done()
		wg.Wait()
		a.logger.Info("Worker exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
