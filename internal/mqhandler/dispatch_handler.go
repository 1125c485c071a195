package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "inboxwhats/contracts/mq"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/mq"
	"inboxwhats/pkg/util"
)

const dispatchMaxRetries = 5

type Dispatcher interface {
	Dispatch(ctx context.Context, task mqcontracts.DispatchNotificationPayload) error
}

// RetryTracker counts deliveries of one task; *util.RetryCounter implements it.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DispatchHandler struct {
	dispatcher   Dispatcher
	retryCounter RetryTracker
	logger       *zap.Logger
}

func NewDispatchHandler(dispatcher Dispatcher, retryCounter RetryTracker, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher:   dispatcher,
		retryCounter: retryCounter,
		logger:       logger,
	}
}

// Handle consumes dispatch-notification. A retryable failure is requeued up
// to dispatchMaxRetries times; after that, or for a non-retryable failure,
// the message is acked and the email stays unnotified for the next digest.
func (h *DispatchHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.DispatchNotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal dispatch payload (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		return mq.Permanent(fmt.Errorf("json_unmarshal_error: %w", err))
	}
	if p.EmailID == 0 || p.UserID == 0 {
		return mq.Permanent(fmt.Errorf("dispatch payload without ids: %s", raw))
	}
	log = log.With(zap.Int64("email_id", p.EmailID), zap.Int64("user_id", p.UserID))

	retryKey := util.FormatRetryKey("dispatch", p.EmailID)
	err := h.dispatcher.Dispatch(ctx, p)
	if err == nil {
		h.resetRetry(ctx, retryKey)
		return nil
	}

	isRetryable, errType := util.IsRetryableError(err)
	retryCount, cntErr := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if cntErr != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(cntErr))
		retryCount = 1
	}

	log.Error("Dispatch failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry_count", retryCount),
		zap.Error(err),
	)

	if util.ShouldRetry(retryCount, dispatchMaxRetries, isRetryable) {
		return err
	}

	log.Warn("Giving up on immediate notification, email left for digest",
		zap.Int64("retry_count", retryCount),
	)
	h.resetRetry(ctx, retryKey)
	return nil
}

func (h *DispatchHandler) resetRetry(ctx context.Context, key string) {
	if err := h.retryCounter.Reset(ctx, key); err != nil {
		h.logger.Warn("Failed to reset retry count", zap.String("key", key), zap.Error(err))
	}
}
