package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "inboxwhats/contracts/mq"
	"inboxwhats/internal/model"
	"inboxwhats/pkg/outbox"
)

const metadataColumns = `id, user_id, provider_id, thread_id, sender, subject, summary,
        category_id, is_urgent, received_at, notified, notified_at`

type MetadataRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewMetadataRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *MetadataRepository {
	return &MetadataRepository{db: db, outbox: outboxRepo}
}

func scanMetadata(row pgx.Row) (*model.EmailMetadata, error) {
	var m model.EmailMetadata
	err := row.Scan(&m.ID, &m.UserID, &m.ProviderID, &m.ThreadID, &m.Sender, &m.Subject, &m.Summary,
		&m.CategoryID, &m.IsUrgent, &m.ReceivedAt, &m.Notified, &m.NotifiedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MetadataRepository) ExistsByProviderID(ctx context.Context, providerID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_metadata WHERE provider_id = $1)`, providerID,
	).Scan(&ok)
	return ok, err
}

// CreateWithDispatch inserts the metadata row and, when dispatch is set, a
// dispatch-notification outbox event in the same transaction. A provider id
// that already exists is a no-op and reports created=false.
func (r *MetadataRepository) CreateWithDispatch(ctx context.Context, m *model.EmailMetadata, dispatch bool) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO email_metadata (user_id, provider_id, thread_id, sender, subject, summary, category_id, is_urgent, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (provider_id) DO NOTHING
        RETURNING id
    `
	err = tx.QueryRow(ctx, query, m.UserID, m.ProviderID, m.ThreadID, m.Sender, m.Subject, m.Summary,
		m.CategoryID, m.IsUrgent, m.ReceivedAt).Scan(&m.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if dispatch {
		var categoryID int64
		if m.CategoryID != nil {
			categoryID = *m.CategoryID
		}
		payload := mqcontracts.DispatchNotificationPayload{
			EmailID:    m.ID,
			UserID:     m.UserID,
			CategoryID: categoryID,
			IsUrgent:   m.IsUrgent,
		}
		if _, err := outbox.Enqueue(ctx, tx, r.outbox, "email_metadata", m.ID,
			mqcontracts.RoutingDispatchNotification, payload); err != nil {
			return false, fmt.Errorf("insert dispatch event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *MetadataRepository) GetByID(ctx context.Context, id int64) (*model.EmailMetadata, error) {
	m, err := scanMetadata(r.db.QueryRow(ctx,
		`SELECT `+metadataColumns+` FROM email_metadata WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// ClaimForNotify locks the row if it is still unnotified, runs send, and marks
// it notified only when send succeeds. claimed=false means another worker
// already notified (or is notifying) it.
func (r *MetadataRepository) ClaimForNotify(
	ctx context.Context,
	id int64,
	now time.Time,
	send func(*model.EmailMetadata) error,
) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMetadata(tx.QueryRow(ctx, `
        SELECT `+metadataColumns+`
        FROM email_metadata
        WHERE id = $1 AND notified = FALSE
        FOR UPDATE SKIP LOCKED
    `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := send(m); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE email_metadata SET notified = TRUE, notified_at = $2 WHERE id = $1`, id, now); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ClaimUnnotifiedByCategory locks every unnotified item of (user, category),
// oldest first, hands them to send and marks them notified if send succeeds.
// Returns how many items were delivered.
func (r *MetadataRepository) ClaimUnnotifiedByCategory(
	ctx context.Context,
	userID, categoryID int64,
	now time.Time,
	send func([]model.EmailMetadata) error,
) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
        SELECT `+metadataColumns+`
        FROM email_metadata
        WHERE user_id = $1 AND category_id = $2 AND notified = FALSE
        ORDER BY received_at ASC, id ASC
        FOR UPDATE SKIP LOCKED
    `, userID, categoryID)
	if err != nil {
		return 0, err
	}

	var items []model.EmailMetadata
	var ids []int64
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		items = append(items, *m)
		ids = append(ids, m.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	if err := send(items); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE email_metadata SET notified = TRUE, notified_at = $2 WHERE id = ANY($1)`, ids, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(items), nil
}

// LatestNotified returns the most recently notified item for the user.
func (r *MetadataRepository) LatestNotified(ctx context.Context, userID int64) (*model.EmailMetadata, error) {
	m, err := scanMetadata(r.db.QueryRow(ctx, `
        SELECT `+metadataColumns+`
        FROM email_metadata
        WHERE user_id = $1 AND notified = TRUE
        ORDER BY notified_at DESC, id DESC
        LIMIT 1
    `, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}
