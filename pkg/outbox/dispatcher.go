package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"inboxwhats/pkg/trace"
)

// RawPublisher is the slice of the MQ publisher the dispatcher needs.
type RawPublisher interface {
	PublishRaw(ctx context.Context, routingKey string, body []byte) error
}

// Store is the slice of Repository the dispatcher and replay service use.
type Store interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	GetEventByID(ctx context.Context, eventID int64) (*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error
	ResetEvent(ctx context.Context, eventID int64) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	repo       Store
	publisher  RawPublisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(repo Store, publisher RawPublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start 阻塞运行直到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.ProcessPending(ctx)
		}
	}
}

// ProcessPending publishes one batch of due events and returns how many were sent.
func (d *Dispatcher) ProcessPending(ctx context.Context) int {
	events, err := d.repo.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}

	sent := 0
	for _, event := range events {
		if err := d.publish(ctx, event); err != nil {
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Int("retry_count", event.RetryCount),
				zap.Error(err),
			)
			if err := d.repo.MarkAsFailed(ctx, event.ID, d.maxRetries); err != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if err := d.repo.MarkAsSent(ctx, event.ID); err != nil {
			// 消息已发出；下一轮会重复投递，消费端幂等
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	if sent > 0 {
		d.logger.Debug("Outbox batch published", zap.Int("sent", sent), zap.Int("fetched", len(events)))
	}
	return sent
}

func (d *Dispatcher) publish(ctx context.Context, event *Event) error {
	return d.publisher.PublishRaw(withPayloadTrace(ctx, event.Payload), event.RoutingKey, event.Payload)
}

// withPayloadTrace 从 payload 的 trace_id 字段恢复 trace 上下文
func withPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.TraceID != "" {
		return trace.WithContext(ctx, envelope.TraceID)
	}
	return ctx
}
