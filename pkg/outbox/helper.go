package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"inboxwhats/pkg/trace"
)

// Enqueue 在 tx 中写入一条待发布事件
//
// payload 为 JSON 对象且没有 trace_id 时，写入 ctx 的 trace_id，
// 这样 Dispatcher 发布时可以恢复同一条链路。
func Enqueue(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID int64,
	routingKey string,
	payload any,
) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}

	event := &Event{
		AggregateType: aggregateType,
		AggregateID:   &aggregateID,
		RoutingKey:    routingKey,
		Payload:       stampTrace(ctx, raw),
		Status:        StatusPending,
	}
	if err := repo.InsertEvent(ctx, tx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func stampTrace(ctx context.Context, raw json.RawMessage) json.RawMessage {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return raw
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return raw
	}
	if existing, ok := fields[trace.TraceIDKey]; ok && string(existing) != `""` {
		return raw
	}

	id, _ := json.Marshal(traceID)
	fields[trace.TraceIDKey] = id
	stamped, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return stamped
}
