// Package scheduler owns the two timers of the pipeline: the poll trigger,
// which publishes poll-emails, and the digest trigger, which runs the
// batcher once per wall-clock minute.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "inboxwhats/contracts/mq"
	"inboxwhats/pkg/metrics"
	"inboxwhats/pkg/trace"
)

// maxCatchUp bounds how many missed minutes one digest tick replays.
const maxCatchUp = 15

type Publisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

type DigestRunner interface {
	BatchCycle(ctx context.Context, now time.Time) (int, error)
}

type Config struct {
	PollInterval   time.Duration
	DigestInterval time.Duration
}

type Scheduler struct {
	publisher Publisher
	digest    DigestRunner
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger

	lastDigest time.Time
}

func New(publisher Publisher, digest DigestRunner, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.DigestInterval <= 0 || cfg.DigestInterval > time.Minute {
		cfg.DigestInterval = time.Minute
	}
	return &Scheduler{
		publisher: publisher,
		digest:    digest,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Run blocks until ctx is done. Both triggers fire once on start.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Duration("digest_interval", s.cfg.DigestInterval),
	)

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	digestTicker := time.NewTicker(s.cfg.DigestInterval)
	defer digestTicker.Stop()

	s.TriggerPoll(ctx)
	s.RunDigest(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-pollTicker.C:
			s.TriggerPoll(ctx)
		case <-digestTicker.C:
			s.RunDigest(ctx)
		}
	}
}

// TriggerPoll publishes one poll-emails task.
func (s *Scheduler) TriggerPoll(ctx context.Context) {
	ctx = trace.Ensure(ctx)
	payload := mqcontracts.PollEmailsPayload{TraceID: trace.FromContext(ctx)}
	if err := s.publisher.PublishWithContext(ctx, mqcontracts.RoutingPollEmails, payload); err != nil {
		s.logger.Error("Failed to publish poll trigger", zap.Error(err))
		return
	}
	s.logger.Debug("Poll trigger published", zap.String("trace_id", payload.TraceID))
}

// RunDigest runs the batcher for every minute since the last run, so a slow
// cycle or a late tick does not skip a schedule. Each minute runs once.
func (s *Scheduler) RunDigest(ctx context.Context) {
	current := s.now().Truncate(time.Minute)
	first := current
	if !s.lastDigest.IsZero() {
		first = s.lastDigest.Add(time.Minute)
		if current.Sub(first) > maxCatchUp*time.Minute {
			s.logger.Warn("Digest fell behind, skipping old minutes",
				zap.Time("last", s.lastDigest),
				zap.Time("now", current),
			)
			first = current.Add(-(maxCatchUp - 1) * time.Minute)
		}
	}

	for m := first; !m.After(current); m = m.Add(time.Minute) {
		cycleCtx := trace.Ensure(ctx)
		start := time.Now()
		sent, err := s.digest.BatchCycle(cycleCtx, m)
		metrics.RecordDigestCycle(err, time.Since(start))
		if err != nil {
			s.logger.Error("Digest cycle failed", zap.Time("minute", m), zap.Error(err))
		} else if sent > 0 {
			s.logger.Info("Digests sent", zap.Time("minute", m), zap.Int("count", sent))
		}
		s.lastDigest = m
	}
}
