package model

import "time"

type DeliveryMode string

const (
	DeliveryImmediate     DeliveryMode = "immediate"
	DeliveryBatchedDaily  DeliveryMode = "batched_daily"
	DeliveryBatchedWeekly DeliveryMode = "batched_weekly"
)

// NotificationSchedule is unique per (user, category). Empty time strings mean unset.
type NotificationSchedule struct {
	ID         int64
	UserID     int64
	CategoryID int64
	Mode       DeliveryMode
	Time1      string
	Time2      string
	WeeklyDay  *time.Weekday
	WeeklyTime string
}

// ClockLayout is the literal 24-hour HH:MM format schedules are compared in.
const ClockLayout = "15:04"
