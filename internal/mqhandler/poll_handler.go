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

type Poller interface {
	PollCycle(ctx context.Context) error
}

type PollHandler struct {
	poller Poller
	logger *zap.Logger
}

func NewPollHandler(poller Poller, logger *zap.Logger) *PollHandler {
	return &PollHandler{poller: poller, logger: logger}
}

// Handle runs one poll cycle per poll-emails message. Per-user failures are
// absorbed by the poller, so an error here means the cycle could not start.
func (h *PollHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.PollEmailsPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Error("Failed to unmarshal poll payload", zap.Error(err), zap.String("raw_payload", string(raw)))
			return mq.Permanent(fmt.Errorf("json_unmarshal_error: %w", err))
		}
	}

	err := h.poller.PollCycle(ctx)
	if err == nil {
		return nil
	}

	isRetryable, errType := util.IsRetryableError(err)
	log.Error("Poll cycle failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)
	if isRetryable {
		return err
	}
	// the next scheduled trigger starts a fresh cycle
	return nil
}
