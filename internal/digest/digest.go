// Package digest sends one combined message per (user, category) whose
// schedule matches the current wall-clock minute.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/metrics"
)

const metricKind = "digest"

type ScheduleStore interface {
	ListBatched(ctx context.Context) ([]model.NotificationSchedule, error)
}

type MetadataStore interface {
	ClaimUnnotifiedByCategory(ctx context.Context, userID, categoryID int64, now time.Time, send func([]model.EmailMetadata) error) (int, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type CategoryStore interface {
	GetByID(ctx context.Context, id int64) (*model.Category, error)
}

type Sender interface {
	SendMessage(ctx context.Context, to, text string) error
}

type Batcher struct {
	schedules  ScheduleStore
	metadata   MetadataStore
	users      UserStore
	categories CategoryStore
	sender     Sender
	logger     *zap.Logger
}

func New(
	schedules ScheduleStore,
	metadata MetadataStore,
	users UserStore,
	categories CategoryStore,
	sender Sender,
	logger *zap.Logger,
) *Batcher {
	return &Batcher{
		schedules:  schedules,
		metadata:   metadata,
		users:      users,
		categories: categories,
		sender:     sender,
		logger:     logger,
	}
}

// Matches compares against now's local HH:MM by plain string equality.
// Immediate schedules never match; weekly ones also need the weekday.
func Matches(s model.NotificationSchedule, now time.Time) bool {
	t := now.Format(model.ClockLayout)
	switch s.Mode {
	case model.DeliveryBatchedDaily:
		return (s.Time1 != "" && s.Time1 == t) || (s.Time2 != "" && s.Time2 == t)
	case model.DeliveryBatchedWeekly:
		return s.WeeklyDay != nil && *s.WeeklyDay == now.Weekday() && s.WeeklyTime == t
	default:
		return false
	}
}

// BatchCycle sends every digest due at now and returns how many were sent.
// One schedule failing does not stop the others; the first error is returned
// after the sweep.
func (b *Batcher) BatchCycle(ctx context.Context, now time.Time) (int, error) {
	log := logger.WithTrace(ctx, b.logger).With(zap.String("time", now.Format(model.ClockLayout)))

	schedules, err := b.schedules.ListBatched(ctx)
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}

	var firstErr error
	sent := 0
	for _, s := range schedules {
		if !Matches(s, now) {
			continue
		}
		ok, err := b.sendDigest(ctx, s, now)
		if err != nil {
			metrics.IncrementNotificationSent(metricKind, "failed")
			log.Error("Digest failed, items stay queued",
				zap.Int64("user_id", s.UserID),
				zap.Int64("category_id", s.CategoryID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			sent++
			metrics.IncrementNotificationSent(metricKind, "sent")
		}
	}

	log.Info("Digest cycle finished", zap.Int("sent", sent))
	return sent, firstErr
}

func (b *Batcher) sendDigest(ctx context.Context, s model.NotificationSchedule, now time.Time) (bool, error) {
	user, err := b.users.GetByID(ctx, s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if user.ChatAddress == "" {
		return false, nil
	}

	cat, err := b.categories.GetByID(ctx, s.CategoryID)
	if err != nil {
		return false, fmt.Errorf("load category %d: %w", s.CategoryID, err)
	}

	n, err := b.metadata.ClaimUnnotifiedByCategory(ctx, s.UserID, s.CategoryID, now, func(items []model.EmailMetadata) error {
		return b.sender.SendMessage(ctx, user.ChatAddress, Render(cat.DisplayName, items))
	})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	b.logger.Info("Digest sent",
		zap.Int64("user_id", s.UserID),
		zap.String("category", cat.Name),
		zap.Int("emails", n),
	)
	return true, nil
}

// Render builds the digest: a title line, then one bullet per item.
func Render(categoryName string, items []model.EmailMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s Digest* 📨\n", categoryName)
	for _, m := range items {
		fmt.Fprintf(&b, "\n• *%s*: %s", m.Sender, m.Subject)
		if m.Summary != "" && m.Summary != m.Subject {
			fmt.Fprintf(&b, " — %s", m.Summary)
		}
	}
	return b.String()
}
