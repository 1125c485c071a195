package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/trace"
)

// ErrInboxClosed is returned by Submit after Close.
var ErrInboxClosed = errors.New("conversation: inbox closed")

// Handler processes one inbound message; *Engine implements it.
type Handler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) error
}

// Inbox decouples the webhook from processing. Each chat address gets its
// own FIFO lane drained by one goroutine, so messages from one address run
// in arrival order while different addresses run concurrently.
type Inbox struct {
	handler Handler
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

type lane struct {
	queue []queued
}

type queued struct {
	traceID string
	msg     InboundMessage
}

func NewInbox(handler Handler, timeout time.Duration, logger *zap.Logger) *Inbox {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Inbox{
		handler: handler,
		timeout: timeout,
		logger:  logger,
		lanes:   make(map[string]*lane),
	}
}

// Submit queues msg behind earlier messages from the same address and
// returns immediately. The trace id of ctx is carried to the handler.
func (i *Inbox) Submit(ctx context.Context, msg InboundMessage) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrInboxClosed
	}

	item := queued{traceID: trace.FromContext(ctx), msg: msg}
	if l, ok := i.lanes[msg.From]; ok {
		l.queue = append(l.queue, item)
		return nil
	}

	l := &lane{queue: []queued{item}}
	i.lanes[msg.From] = l
	i.wg.Add(1)
	go i.drain(msg.From, l)
	return nil
}

// drain exits once its lane is empty; the next Submit starts a new one.
func (i *Inbox) drain(addr string, l *lane) {
	defer i.wg.Done()
	for {
		i.mu.Lock()
		if len(l.queue) == 0 {
			delete(i.lanes, addr)
			i.mu.Unlock()
			return
		}
		item := l.queue[0]
		l.queue = l.queue[1:]
		i.mu.Unlock()

		i.process(item)
	}
}

func (i *Inbox) process(item queued) {
	ctx := context.Background()
	if item.traceID != "" {
		ctx = trace.WithContext(ctx, item.traceID)
	} else {
		ctx = trace.Ensure(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	log := logger.WithTrace(ctx, i.logger).With(zap.String("from", logger.MaskAddress(item.msg.From)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while handling chat message", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := i.handler.HandleMessage(ctx, item.msg); err != nil {
		log.Error("Failed to handle chat message", zap.Error(err))
	}
}

// Close stops accepting messages and waits for queued ones to finish or for
// ctx to end.
func (i *Inbox) Close(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("inbox drain: %w", ctx.Err())
	}
}
