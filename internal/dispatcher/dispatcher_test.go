package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	mqcontracts "inboxwhats/contracts/mq"
	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
)

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

// fakeMetadata serializes claims the way the row lock does.
type fakeMetadata struct {
	mu   sync.Mutex
	rows map[int64]*model.EmailMetadata
}

func (f *fakeMetadata) GetByID(_ context.Context, id int64) (*model.EmailMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMetadata) ClaimForNotify(_ context.Context, id int64, now time.Time, send func(*model.EmailMetadata) error) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[id]
	if !ok || m.Notified {
		return false, nil
	}
	cp := *m
	if err := send(&cp); err != nil {
		return false, err
	}
	m.Notified = true
	m.NotifiedAt = &now
	return true, nil
}

type fakeSchedules map[int64]*model.NotificationSchedule

func (f fakeSchedules) Get(_ context.Context, _, categoryID int64) (*model.NotificationSchedule, error) {
	if s, ok := f[categoryID]; ok {
		return s, nil
	}
	return nil, repository.ErrNotFound
}

type fakeCategories struct{}

func (fakeCategories) GetByID(_ context.Context, id int64) (*model.Category, error) {
	if id < 1 || int(id) > len(model.Catalog) {
		return nil, repository.ErrNotFound
	}
	c := model.Catalog[id-1]
	c.ID = id
	return &c, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+text)
	return nil
}

const workID = 4

type fixture struct {
	metadata *fakeMetadata
	sender   *fakeSender
	d        *Dispatcher
}

func newFixture(t *testing.T, schedules fakeSchedules) *fixture {
	t.Helper()
	cat := int64(workID)
	f := &fixture{
		metadata: &fakeMetadata{rows: map[int64]*model.EmailMetadata{
			10: {ID: 10, UserID: 1, Sender: "boss@corp.com", Subject: "Q3 plan", Summary: "Needs review", CategoryID: &cat},
		}},
		sender: &fakeSender{},
	}
	users := fakeUsers{1: {ID: 1, ChatAddress: "whatsapp:+5511999990000"}, 2: {ID: 2}}
	f.d = New(users, f.metadata, schedules, fakeCategories{}, f.sender, zap.NewNop())
	return f
}

func task(urgent bool) mqcontracts.DispatchNotificationPayload {
	return mqcontracts.DispatchNotificationPayload{EmailID: 10, UserID: 1, CategoryID: workID, IsUrgent: urgent}
}

func TestSendNow(t *testing.T) {
	batched := &model.NotificationSchedule{Mode: model.DeliveryBatchedDaily}
	immediate := &model.NotificationSchedule{Mode: model.DeliveryImmediate}
	tests := []struct {
		name   string
		urgent bool
		s      *model.NotificationSchedule
		want   bool
	}{
		{"no schedule", false, nil, true},
		{"immediate", false, immediate, true},
		{"batched", false, batched, false},
		{"urgent beats batched", true, batched, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SendNow(tt.urgent, tt.s); got != tt.want {
				t.Errorf("SendNow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchTwiceSendsOnce(t *testing.T) {
	f := newFixture(t, fakeSchedules{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.d.Dispatch(ctx, task(false)); err != nil {
			t.Fatalf("Dispatch() run %d error = %v", i, err)
		}
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.sender.sent))
	}
	if !f.metadata.rows[10].Notified || f.metadata.rows[10].NotifiedAt == nil {
		t.Error("row not marked notified")
	}
	msg := f.sender.sent[0]
	for _, want := range []string{"whatsapp:+5511999990000|", "*New Email from Work*", "From: boss@corp.com", "Subject: Q3 plan", "Needs review", `Reply "Reply" to respond.`} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestDispatchConcurrentSendsOnce(t *testing.T) {
	f := newFixture(t, fakeSchedules{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.d.Dispatch(ctx, task(false))
		}()
	}
	wg.Wait()

	if len(f.sender.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(f.sender.sent))
	}
}

func TestDispatchBatchedDefers(t *testing.T) {
	f := newFixture(t, fakeSchedules{workID: {Mode: model.DeliveryBatchedDaily, Time1: "09:00"}})

	if err := f.d.Dispatch(context.Background(), task(false)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(f.sender.sent))
	}
	if f.metadata.rows[10].Notified {
		t.Error("deferred row must stay unnotified")
	}
}

func TestDispatchUrgentBypassesBatching(t *testing.T) {
	f := newFixture(t, fakeSchedules{workID: {Mode: model.DeliveryBatchedWeekly}})

	if err := f.d.Dispatch(context.Background(), task(true)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(f.sender.sent))
	}
}

func TestDispatchNoOps(t *testing.T) {
	tests := []struct {
		name string
		task mqcontracts.DispatchNotificationPayload
	}{
		{"missing user", mqcontracts.DispatchNotificationPayload{EmailID: 10, UserID: 99, CategoryID: workID}},
		{"missing chat address", mqcontracts.DispatchNotificationPayload{EmailID: 10, UserID: 2, CategoryID: workID}},
		{"missing email", mqcontracts.DispatchNotificationPayload{EmailID: 77, UserID: 1, CategoryID: workID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fakeSchedules{})
			if err := f.d.Dispatch(context.Background(), tt.task); err != nil {
				t.Fatalf("Dispatch() error = %v, want nil", err)
			}
			if len(f.sender.sent) != 0 {
				t.Errorf("sent %d messages, want 0", len(f.sender.sent))
			}
		})
	}
}

func TestDispatchSendFailureLeavesRowUnnotified(t *testing.T) {
	f := newFixture(t, fakeSchedules{})
	f.sender.err = errors.New("twilio 503")

	if err := f.d.Dispatch(context.Background(), task(false)); err == nil {
		t.Fatal("expected error")
	}
	if f.metadata.rows[10].Notified {
		t.Error("row marked notified after failed send")
	}

	f.sender.err = nil
	if err := f.d.Dispatch(context.Background(), task(false)); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if !f.metadata.rows[10].Notified {
		t.Error("retry did not mark row notified")
	}
}

func TestRenderSingleWithoutSummary(t *testing.T) {
	got := RenderSingle("Banks", &model.EmailMetadata{Sender: "x@bank.com", Subject: "Bill"})
	want := "📧 *New Email from Banks*\nFrom: x@bank.com\nSubject: Bill\n\nReply \"Reply\" to respond."
	if got != want {
		t.Errorf("RenderSingle() =\n%q\nwant\n%q", got, want)
	}
}
