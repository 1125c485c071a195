package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReplayService 重新投递已进入 failed 状态的事件
type ReplayService struct {
	repo      Store
	publisher RawPublisher
	logger    *zap.Logger
}

func NewReplayService(repo Store, publisher RawPublisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ReplayEvent 立即重新发布指定事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	if err := s.repo.ResetEvent(ctx, eventID); err != nil {
		return err
	}

	if err := s.publisher.PublishRaw(withPayloadTrace(ctx, event.Payload), event.RoutingKey, event.Payload); err != nil {
		// 保持 pending，交给 Dispatcher 继续重试
		if markErr := s.repo.MarkAsFailed(ctx, eventID, 5); markErr != nil {
			return fmt.Errorf("failed to publish and mark as failed: %w (mark error: %v)", err, markErr)
		}
		return fmt.Errorf("failed to publish: %w", err)
	}

	if err := s.repo.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark as sent: %w", err)
	}
	return nil
}

// ReplayFailedEvents 重放最多 limit 个失败事件，返回成功数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	replayed := 0
	for _, event := range events {
		if err := s.ReplayEvent(ctx, event.ID); err != nil {
			s.logger.Warn("Replay failed",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			continue
		}
		replayed++
	}
	return replayed, nil
}
