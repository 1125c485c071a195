package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
)

func weekday(d time.Weekday) *time.Weekday { return &d }

// 2026-10-19 is a Monday.
func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2026-10-19 "+hhmm, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		s    model.NotificationSchedule
		now  time.Time
		want bool
	}{
		{"daily time1", model.NotificationSchedule{Mode: model.DeliveryBatchedDaily, Time1: "09:00", Time2: "17:00"}, at("09:00"), true},
		{"daily time2", model.NotificationSchedule{Mode: model.DeliveryBatchedDaily, Time1: "09:00", Time2: "17:00"}, at("17:00"), true},
		{"daily other minute", model.NotificationSchedule{Mode: model.DeliveryBatchedDaily, Time1: "09:00"}, at("09:01"), false},
		{"daily without times", model.NotificationSchedule{Mode: model.DeliveryBatchedDaily}, at("00:00"), false},
		{"immediate never", model.NotificationSchedule{Mode: model.DeliveryImmediate, Time1: "09:00"}, at("09:00"), false},
		{"weekly right day", model.NotificationSchedule{Mode: model.DeliveryBatchedWeekly, WeeklyDay: weekday(time.Monday), WeeklyTime: "09:00"}, at("09:00"), true},
		{"weekly wrong day", model.NotificationSchedule{Mode: model.DeliveryBatchedWeekly, WeeklyDay: weekday(time.Tuesday), WeeklyTime: "09:00"}, at("09:00"), false},
		{"weekly wrong time", model.NotificationSchedule{Mode: model.DeliveryBatchedWeekly, WeeklyDay: weekday(time.Monday), WeeklyTime: "09:00"}, at("10:00"), false},
		{"weekly without day", model.NotificationSchedule{Mode: model.DeliveryBatchedWeekly, WeeklyTime: "09:00"}, at("09:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.s, tt.now); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeSchedules struct {
	list []model.NotificationSchedule
}

func (f fakeSchedules) ListBatched(context.Context) ([]model.NotificationSchedule, error) {
	return f.list, nil
}

type fakeMetadata struct {
	mu   sync.Mutex
	rows []*model.EmailMetadata
}

func (f *fakeMetadata) ClaimUnnotifiedByCategory(_ context.Context, userID, categoryID int64, now time.Time, send func([]model.EmailMetadata) error) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []*model.EmailMetadata
	var items []model.EmailMetadata
	for _, r := range f.rows {
		if r.UserID == userID && r.CategoryID != nil && *r.CategoryID == categoryID && !r.Notified {
			claimed = append(claimed, r)
			items = append(items, *r)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := send(items); err != nil {
		return 0, err
	}
	for _, r := range claimed {
		r.Notified = true
		r.NotifiedAt = &now
	}
	return len(items), nil
}

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeCategories struct{}

func (fakeCategories) GetByID(_ context.Context, id int64) (*model.Category, error) {
	c := model.Catalog[id-1]
	c.ID = id
	return &c, nil
}

type fakeSender struct {
	sent   []string
	failTo string
}

func (f *fakeSender) SendMessage(_ context.Context, to, text string) error {
	if to == f.failTo {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, text)
	return nil
}

func ptr(v int64) *int64 { return &v }

const workID = 4

func TestBatchCycleCombinesItems(t *testing.T) {
	meta := &fakeMetadata{rows: []*model.EmailMetadata{
		{ID: 1, UserID: 1, CategoryID: ptr(workID), Sender: "ana@corp.com", Subject: "Standup", Summary: "Moved to 10am"},
		{ID: 2, UserID: 1, CategoryID: ptr(workID), Sender: "bob@corp.com", Subject: "Review"},
		{ID: 3, UserID: 1, CategoryID: ptr(5), Sender: "mom@home.com", Subject: "Dinner"},
	}}
	sender := &fakeSender{}
	b := New(
		fakeSchedules{list: []model.NotificationSchedule{{UserID: 1, CategoryID: workID, Mode: model.DeliveryBatchedDaily, Time1: "09:00"}}},
		meta, fakeUsers{1: {ID: 1, ChatAddress: "+1"}}, fakeCategories{}, sender, zap.NewNop(),
	)

	n, err := b.BatchCycle(context.Background(), at("09:00"))
	if err != nil {
		t.Fatalf("BatchCycle() error = %v", err)
	}
	if n != 1 || len(sender.sent) != 1 {
		t.Fatalf("digests = %d, sent = %d, want 1", n, len(sender.sent))
	}

	msg := sender.sent[0]
	if !strings.HasPrefix(msg, "*Work Digest* 📨") {
		t.Errorf("title line missing:\n%s", msg)
	}
	if strings.Count(msg, "• ") != 2 {
		t.Errorf("want 2 bullets:\n%s", msg)
	}
	if !strings.Contains(msg, "*ana@corp.com*: Standup — Moved to 10am") {
		t.Errorf("bullet format:\n%s", msg)
	}

	r1, r2 := meta.rows[0], meta.rows[1]
	if !r1.Notified || !r2.Notified {
		t.Fatal("both items must be notified")
	}
	if !r1.NotifiedAt.Equal(*r2.NotifiedAt) {
		t.Errorf("notified_at differs: %v vs %v", r1.NotifiedAt, r2.NotifiedAt)
	}
	if meta.rows[2].Notified {
		t.Error("item from another category notified")
	}
}

func TestBatchCycleOnlyAtMatchingTime(t *testing.T) {
	meta := &fakeMetadata{rows: []*model.EmailMetadata{{ID: 1, UserID: 1, CategoryID: ptr(workID)}}}
	sender := &fakeSender{}
	b := New(
		fakeSchedules{list: []model.NotificationSchedule{{UserID: 1, CategoryID: workID, Mode: model.DeliveryBatchedDaily, Time1: "09:00"}}},
		meta, fakeUsers{1: {ID: 1, ChatAddress: "+1"}}, fakeCategories{}, sender, zap.NewNop(),
	)

	if n, _ := b.BatchCycle(context.Background(), at("08:59")); n != 0 || len(sender.sent) != 0 {
		t.Errorf("sent at 08:59: n=%d", n)
	}
	if n, _ := b.BatchCycle(context.Background(), at("09:00")); n != 1 {
		t.Errorf("n at 09:00 = %d, want 1", n)
	}
	if n, _ := b.BatchCycle(context.Background(), at("09:00")); n != 0 {
		t.Errorf("second run at 09:00 sent %d, want 0 (nothing left)", n)
	}
}

func TestBatchCycleSkipsImmediateAndEmpty(t *testing.T) {
	meta := &fakeMetadata{rows: []*model.EmailMetadata{{ID: 1, UserID: 1, CategoryID: ptr(1)}}}
	sender := &fakeSender{}
	b := New(
		fakeSchedules{list: []model.NotificationSchedule{
			{UserID: 1, CategoryID: 1, Mode: model.DeliveryImmediate, Time1: "09:00"},
			{UserID: 1, CategoryID: workID, Mode: model.DeliveryBatchedDaily, Time1: "09:00"},
		}},
		meta, fakeUsers{1: {ID: 1, ChatAddress: "+1"}}, fakeCategories{}, sender, zap.NewNop(),
	)

	n, err := b.BatchCycle(context.Background(), at("09:00"))
	if err != nil || n != 0 || len(sender.sent) != 0 {
		t.Errorf("n=%d err=%v sent=%d, want nothing", n, err, len(sender.sent))
	}
	if meta.rows[0].Notified {
		t.Error("immediate-mode item swept by digest")
	}
}

func TestBatchCycleSendFailureKeepsItemsAndContinues(t *testing.T) {
	meta := &fakeMetadata{rows: []*model.EmailMetadata{
		{ID: 1, UserID: 1, CategoryID: ptr(workID)},
		{ID: 2, UserID: 2, CategoryID: ptr(workID)},
	}}
	sender := &fakeSender{failTo: "+1"}
	b := New(
		fakeSchedules{list: []model.NotificationSchedule{
			{UserID: 1, CategoryID: workID, Mode: model.DeliveryBatchedDaily, Time1: "09:00"},
			{UserID: 2, CategoryID: workID, Mode: model.DeliveryBatchedDaily, Time1: "09:00"},
		}},
		meta, fakeUsers{1: {ID: 1, ChatAddress: "+1"}, 2: {ID: 2, ChatAddress: "+2"}}, fakeCategories{}, sender, zap.NewNop(),
	)

	n, err := b.BatchCycle(context.Background(), at("09:00"))
	if err == nil {
		t.Error("expected the failure to be reported")
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if meta.rows[0].Notified {
		t.Error("failed digest marked its item notified")
	}
	if !meta.rows[1].Notified {
		t.Error("second user's digest not sent")
	}
}
