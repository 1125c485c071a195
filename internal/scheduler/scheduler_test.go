package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	mqcontracts "inboxwhats/contracts/mq"
)

type fakePublisher struct {
	keys []string
	err  error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, key string, payload any) error {
	if f.err != nil {
		return f.err
	}
	p, ok := payload.(mqcontracts.PollEmailsPayload)
	if !ok || p.TraceID == "" {
		return errors.New("unexpected payload")
	}
	f.keys = append(f.keys, key)
	return nil
}

type fakeDigest struct {
	minutes []string
}

func (f *fakeDigest) BatchCycle(_ context.Context, now time.Time) (int, error) {
	f.minutes = append(f.minutes, now.Format("15:04"))
	return 0, nil
}

func newScheduler(clock *time.Time) (*Scheduler, *fakePublisher, *fakeDigest) {
	pub, dig := &fakePublisher{}, &fakeDigest{}
	s := New(pub, dig, Config{}, zap.NewNop())
	s.now = func() time.Time { return *clock }
	return s, pub, dig
}

func TestTriggerPoll(t *testing.T) {
	clock := time.Now()
	s, pub, _ := newScheduler(&clock)

	s.TriggerPoll(context.Background())
	if len(pub.keys) != 1 || pub.keys[0] != mqcontracts.RoutingPollEmails {
		t.Errorf("published = %v", pub.keys)
	}
}

func TestRunDigestOncePerMinute(t *testing.T) {
	clock := time.Date(2026, 10, 19, 9, 0, 10, 0, time.Local)
	s, _, dig := newScheduler(&clock)
	ctx := context.Background()

	s.RunDigest(ctx)
	clock = clock.Add(30 * time.Second)
	s.RunDigest(ctx)
	clock = clock.Add(30 * time.Second)
	s.RunDigest(ctx)

	want := []string{"09:00", "09:01"}
	if len(dig.minutes) != len(want) || dig.minutes[0] != want[0] || dig.minutes[1] != want[1] {
		t.Errorf("minutes = %v, want %v", dig.minutes, want)
	}
}

func TestRunDigestCatchesUpMissedMinutes(t *testing.T) {
	clock := time.Date(2026, 10, 19, 8, 58, 0, 0, time.Local)
	s, _, dig := newScheduler(&clock)
	ctx := context.Background()

	s.RunDigest(ctx)
	clock = clock.Add(3 * time.Minute)
	s.RunDigest(ctx)

	want := []string{"08:58", "08:59", "09:00", "09:01"}
	if len(dig.minutes) != len(want) {
		t.Fatalf("minutes = %v, want %v", dig.minutes, want)
	}
	for i := range want {
		if dig.minutes[i] != want[i] {
			t.Errorf("minutes = %v, want %v", dig.minutes, want)
		}
	}
}

func TestRunDigestBoundsCatchUp(t *testing.T) {
	clock := time.Date(2026, 10, 19, 8, 0, 0, 0, time.Local)
	s, _, dig := newScheduler(&clock)
	ctx := context.Background()

	s.RunDigest(ctx)
	clock = clock.Add(2 * time.Hour)
	s.RunDigest(ctx)

	if got := len(dig.minutes) - 1; got != maxCatchUp {
		t.Errorf("replayed %d minutes, want %d", got, maxCatchUp)
	}
	if last := dig.minutes[len(dig.minutes)-1]; last != "10:00" {
		t.Errorf("last minute = %s, want 10:00", last)
	}
}
