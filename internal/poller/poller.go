// Package poller pulls new inbox mail for every linked user, categorizes it
// and stores it together with a dispatch task.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"inboxwhats/internal/categorizer"
	"inboxwhats/internal/gmail"
	"inboxwhats/internal/model"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/metrics"
)

const (
	DefaultMaxResults = 10
	leaseScope        = "poll-user"
)

type MailFetcher interface {
	FetchNewEmails(ctx context.Context, userID int64, limit int64) ([]gmail.Message, error)
}

type AccountLister interface {
	ListLinkedUserIDs(ctx context.Context) ([]int64, error)
}

type MetadataStore interface {
	ExistsByProviderID(ctx context.Context, providerID string) (bool, error)
	CreateWithDispatch(ctx context.Context, m *model.EmailMetadata, dispatch bool) (bool, error)
}

type Categorizer interface {
	Categorize(ctx context.Context, userID int64, e categorizer.Email) categorizer.Result
	CategoryByName(ctx context.Context, name string) (*model.Category, error)
}

// Lease guards a user against overlapping cycles. util.Deduper implements it.
type Lease interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
	Release(ctx context.Context, scope, key string)
}

type Poller struct {
	mail        MailFetcher
	accounts    AccountLister
	metadata    MetadataStore
	categorizer Categorizer
	lease       Lease
	maxResults  int64
	logger      *zap.Logger
}

func New(
	mail MailFetcher,
	accounts AccountLister,
	metadata MetadataStore,
	c Categorizer,
	lease Lease,
	maxResults int64,
	logger *zap.Logger,
) *Poller {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Poller{
		mail:        mail,
		accounts:    accounts,
		metadata:    metadata,
		categorizer: c,
		lease:       lease,
		maxResults:  maxResults,
		logger:      logger,
	}
}

// PollCycle polls every linked user. A failing user is logged and skipped;
// only a failure to list users aborts the cycle.
func (p *Poller) PollCycle(ctx context.Context) error {
	log := logger.WithTrace(ctx, p.logger)
	start := time.Now()

	userIDs, err := p.accounts.ListLinkedUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list linked users: %w", err)
	}

	var created, failed int
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := p.pollUser(ctx, userID)
		created += n
		if err != nil {
			failed++
			if errors.Is(err, gmail.ErrInvalidGrant) {
				log.Warn("Skipping user until mail account is re-linked",
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
				continue
			}
			log.Error("Poll failed for user", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	log.Info("Poll cycle finished",
		zap.Int("users", len(userIDs)),
		zap.Int("failed_users", failed),
		zap.Int("new_emails", created),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (p *Poller) pollUser(ctx context.Context, userID int64) (int, error) {
	key := strconv.FormatInt(userID, 10)
	if p.lease != nil {
		if !p.lease.AcquireOnce(ctx, leaseScope, key) {
			return 0, nil
		}
		defer p.lease.Release(ctx, leaseScope, key)
	}

	msgs, err := p.mail.FetchNewEmails(ctx, userID, p.maxResults)
	if err != nil {
		metrics.IncrementEmailsPolled("error")
		return 0, err
	}

	created := 0
	for _, msg := range msgs {
		ok, err := p.ingest(ctx, userID, msg)
		if err != nil {
			metrics.IncrementEmailsPolled("error")
			return created, fmt.Errorf("ingest %s: %w", msg.ID, err)
		}
		if ok {
			created++
			metrics.IncrementEmailsPolled("created")
		} else {
			metrics.IncrementEmailsPolled("duplicate")
		}
	}
	return created, nil
}

// ingest stores one message; false means it was already known.
func (p *Poller) ingest(ctx context.Context, userID int64, msg gmail.Message) (bool, error) {
	exists, err := p.metadata.ExistsByProviderID(ctx, msg.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	result := p.categorizer.Categorize(ctx, userID, categorizer.Email{
		From:    msg.From,
		Subject: msg.Subject,
		Snippet: msg.Snippet,
	})

	var categoryID *int64
	if cat, err := p.categorizer.CategoryByName(ctx, result.Category); err == nil {
		categoryID = &cat.ID
	} else {
		p.logger.Warn("Category not resolved, storing without one",
			zap.String("category", result.Category),
			zap.Error(err),
		)
	}

	summary := result.Summary
	if summary == "" {
		summary = msg.Snippet
	}

	m := &model.EmailMetadata{
		UserID:     userID,
		ProviderID: msg.ID,
		ThreadID:   msg.ThreadID,
		Sender:     msg.From,
		Subject:    msg.Subject,
		Summary:    summary,
		CategoryID: categoryID,
		IsUrgent:   result.IsUrgent,
		ReceivedAt: msg.ReceivedAt,
	}
	return p.metadata.CreateWithDispatch(ctx, m, categoryID != nil)
}
