package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inboxwhats/internal/conversation"
	"inboxwhats/internal/httpserver"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat webhook and the conversation engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "inboxwhats-api", needs{mq: true})
		if err != nil {
			return err
		}
		defer a.Close()

		inbox := conversation.NewInbox(a.engine(), a.cfg.Conversation.HandlerTimeout, a.logger)
		webhook := httpserver.NewWebhookHandler(inbox, a.cfg.Webhook.VerifyToken, a.logger)
		router := httpserver.NewRouter(webhook, a.pool, a.publisher, a.cfg.HTTP(), a.logger)

		srv := &http.Server{
			Addr:              a.cfg.Server.Port,
			Handler:           router.Engine,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("Shutting down server...")
		case err := <-errCh:
			a.logger.Error("HTTP server failed", zap.Error(err))
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := inbox.Close(shutdownCtx); err != nil {
			a.logger.Warn("Inbox did not drain before shutdown", zap.Error(err))
		}
		a.logger.Info("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
