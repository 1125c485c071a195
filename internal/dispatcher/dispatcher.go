// Package dispatcher decides, per stored email, whether to notify the user
// right away or leave the item for the next digest.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	mqcontracts "inboxwhats/contracts/mq"
	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/metrics"
)

const metricKind = "single"

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type MetadataStore interface {
	GetByID(ctx context.Context, id int64) (*model.EmailMetadata, error)
	ClaimForNotify(ctx context.Context, id int64, now time.Time, send func(*model.EmailMetadata) error) (bool, error)
}

type ScheduleStore interface {
	Get(ctx context.Context, userID, categoryID int64) (*model.NotificationSchedule, error)
}

type CategoryStore interface {
	GetByID(ctx context.Context, id int64) (*model.Category, error)
}

type Sender interface {
	SendMessage(ctx context.Context, to, text string) error
}

type Dispatcher struct {
	users      UserStore
	metadata   MetadataStore
	schedules  ScheduleStore
	categories CategoryStore
	sender     Sender
	now        func() time.Time
	logger     *zap.Logger
}

func New(
	users UserStore,
	metadata MetadataStore,
	schedules ScheduleStore,
	categories CategoryStore,
	sender Sender,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:      users,
		metadata:   metadata,
		schedules:  schedules,
		categories: categories,
		sender:     sender,
		now:        time.Now,
		logger:     logger,
	}
}

// SendNow is the delivery rule: urgent mail, mail without a schedule and
// immediate schedules are sent at once; everything else waits for a digest.
func SendNow(isUrgent bool, s *model.NotificationSchedule) bool {
	return isUrgent || s == nil || s.Mode == model.DeliveryImmediate
}

// Dispatch handles one dispatch-notification task. Running it twice for the
// same email sends at most once. Missing user, address or email are no-ops.
func (d *Dispatcher) Dispatch(ctx context.Context, task mqcontracts.DispatchNotificationPayload) error {
	log := logger.WithTrace(ctx, d.logger).With(
		zap.Int64("email_id", task.EmailID),
		zap.Int64("user_id", task.UserID),
	)

	user, err := d.users.GetByID(ctx, task.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("User not found, skip")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.ChatAddress == "" {
		log.Info("User has no chat address, skip")
		return nil
	}

	email, err := d.metadata.GetByID(ctx, task.EmailID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Email not found, skip")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load email: %w", err)
	}
	if email.Notified {
		log.Info("Email already notified, skip")
		return nil
	}

	categoryID := task.CategoryID
	if categoryID == 0 && email.CategoryID != nil {
		categoryID = *email.CategoryID
	}

	schedule, err := d.schedules.Get(ctx, task.UserID, categoryID)
	if errors.Is(err, repository.ErrNotFound) {
		schedule = nil
	} else if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	if !SendNow(task.IsUrgent, schedule) {
		log.Info("Email deferred to digest", zap.String("mode", string(schedule.Mode)))
		metrics.IncrementNotificationSent(metricKind, "deferred")
		return nil
	}

	categoryName := "Inbox"
	if cat, err := d.categories.GetByID(ctx, categoryID); err == nil {
		categoryName = cat.DisplayName
	}

	claimed, err := d.metadata.ClaimForNotify(ctx, email.ID, d.now(), func(m *model.EmailMetadata) error {
		return d.sender.SendMessage(ctx, user.ChatAddress, RenderSingle(categoryName, m))
	})
	if err != nil {
		metrics.IncrementNotificationSent(metricKind, "failed")
		return fmt.Errorf("notify: %w", err)
	}
	if !claimed {
		log.Info("Email notified concurrently, skip")
		return nil
	}

	metrics.IncrementNotificationSent(metricKind, "sent")
	log.Info("Notification sent",
		zap.String("to", logger.MaskAddress(user.ChatAddress)),
		zap.Bool("urgent", task.IsUrgent),
	)
	return nil
}

// RenderSingle formats the chat message for one email.
func RenderSingle(categoryName string, m *model.EmailMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📧 *New Email from %s*\n", categoryName)
	fmt.Fprintf(&b, "From: %s\n", m.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	if m.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", m.Summary)
	}
	b.WriteString("\nReply \"Reply\" to respond.")
	return b.String()
}
