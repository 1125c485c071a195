package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inboxwhats/internal/model"
)

const scheduleColumns = `id, user_id, category_id, delivery_mode, time1, time2, weekly_day, weekly_time`

type ScheduleRepository struct {
	db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func scanSchedule(row pgx.Row) (*model.NotificationSchedule, error) {
	var s model.NotificationSchedule
	var time1, time2, weeklyTime *string
	var weeklyDay *int16
	if err := row.Scan(&s.ID, &s.UserID, &s.CategoryID, &s.Mode, &time1, &time2, &weeklyDay, &weeklyTime); err != nil {
		return nil, err
	}
	s.Time1 = derefString(time1)
	s.Time2 = derefString(time2)
	s.WeeklyTime = derefString(weeklyTime)
	if weeklyDay != nil {
		d := time.Weekday(*weeklyDay)
		s.WeeklyDay = &d
	}
	return &s, nil
}

// Get returns the schedule for (user, category), or ErrNotFound.
func (r *ScheduleRepository) Get(ctx context.Context, userID, categoryID int64) (*model.NotificationSchedule, error) {
	s, err := scanSchedule(r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM notification_schedules WHERE user_id = $1 AND category_id = $2`,
		userID, categoryID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListBatched returns every batched schedule; matching against the clock is done by the caller.
func (r *ScheduleRepository) ListBatched(ctx context.Context) ([]model.NotificationSchedule, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+scheduleColumns+`
        FROM notification_schedules
        WHERE delivery_mode IN ('batched_daily', 'batched_weekly')
        ORDER BY user_id, category_id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NotificationSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) Upsert(ctx context.Context, s *model.NotificationSchedule) error {
	var weeklyDay *int16
	if s.WeeklyDay != nil {
		d := int16(*s.WeeklyDay)
		weeklyDay = &d
	}
	query := `
        INSERT INTO notification_schedules (user_id, category_id, delivery_mode, time1, time2, weekly_day, weekly_time)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, category_id) DO UPDATE SET
            delivery_mode = EXCLUDED.delivery_mode,
            time1 = EXCLUDED.time1,
            time2 = EXCLUDED.time2,
            weekly_day = EXCLUDED.weekly_day,
            weekly_time = EXCLUDED.weekly_time
        RETURNING id
    `
	return r.db.QueryRow(ctx, query, s.UserID, s.CategoryID, string(s.Mode),
		nullString(s.Time1), nullString(s.Time2), weeklyDay, nullString(s.WeeklyTime)).Scan(&s.ID)
}
