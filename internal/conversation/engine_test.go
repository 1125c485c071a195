package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"inboxwhats/internal/llm"
	"inboxwhats/internal/model"
	"inboxwhats/pkg/util"
)

func TestNewAddressGetsSignedLink(t *testing.T) {
	f := newFixture(t)

	msg := f.send("hello")

	if !strings.Contains(msg, "Welcome to InboxWhats") {
		t.Errorf("welcome message = %q", msg)
	}
	if got := f.phase(); got != (Onboarding{Stage: StageAwaitingLink}) {
		t.Errorf("phase = %s, want AWAITING_LINK", got.Name())
	}
	u, err := f.users.GetByChatAddress(context.Background(), addr)
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}

	userID, chat, err := util.ParseLinkToken(stateParam(t, msg), linkSecret)
	if err != nil {
		t.Fatalf("ParseLinkToken: %v", err)
	}
	if userID != u.ID || chat != addr {
		t.Errorf("token = (%d, %q), want (%d, %q)", userID, chat, u.ID, addr)
	}
}

func TestDoneBeforeLinkStaysAwaiting(t *testing.T) {
	f := newFixture(t)
	f.send("hi")

	if msg := f.send("what now?"); msg != msgLinkReprompt {
		t.Errorf("reprompt = %q", msg)
	}
	if msg := f.send("Done"); msg != msgLinkNotFound {
		t.Errorf("done without link = %q", msg)
	}
	if got := f.phase(); got != (Onboarding{Stage: StageAwaitingLink}) {
		t.Errorf("phase = %s, want AWAITING_LINK", got.Name())
	}
	if f.mail.scanCalls != 0 {
		t.Error("style scan ran before link")
	}
}

func TestLinkedRunsOnce(t *testing.T) {
	f := newFixture(t)
	f.send("hi")
	f.link()

	msg := f.send(" connected ")
	if !strings.Contains(msg, "Promotional") {
		t.Errorf("promo menu = %q", msg)
	}
	if !strings.Contains(msg, "Work") {
		t.Errorf("inbox scan suggestions missing: %q", msg)
	}
	if got := f.phase(); got != (Onboarding{Stage: StageCollectingPromo}) {
		t.Errorf("phase = %s", got.Name())
	}

	if msg := f.send("7"); msg != msgPromoReprompt {
		t.Errorf("invalid promo reply = %q", msg)
	}
	f.send("done")
	if f.mail.scanCalls != 1 || f.scanner.calls != 1 {
		t.Errorf("scans = %d sent, %d inbox, want 1 each", f.mail.scanCalls, f.scanner.calls)
	}
}

func TestStyleProfileFromSentMail(t *testing.T) {
	f := newFixture(t)
	f.send("hi")
	f.link()
	f.send("done")

	if len(f.model.styleSamples) != 1 {
		t.Fatalf("samples = %q, want the one non-empty body", f.model.styleSamples)
	}
	sample := f.model.styleSamples[0]
	if strings.Contains(sample, "<p>") || !strings.Contains(sample, "10 & bring") {
		t.Errorf("sample not plain text: %q", sample)
	}

	u, _ := f.users.GetByChatAddress(context.Background(), addr)
	p := f.styles.profiles[u.ID]
	if p == nil {
		t.Fatal("style profile not saved")
	}
	if p.Tone != "casual" || p.FormalityScore != 0.2 || len(p.SampleTexts) != 1 {
		t.Errorf("profile = %+v", p)
	}
}

func TestStyleFailureDoesNotBlockOnboarding(t *testing.T) {
	f := newFixture(t)
	f.model.styleErr = errors.New("model down")
	f.send("hi")
	f.link()
	f.send("done")

	if got := f.phase(); got != (Onboarding{Stage: StageCollectingPromo}) {
		t.Errorf("phase = %s, want COLLECTING_PROMO_PREF", got.Name())
	}
	if f.styles.upserts != 0 {
		t.Error("profile saved despite model failure")
	}
}

func TestFullOnboarding(t *testing.T) {
	f := newFixture(t)
	f.onboard()

	u, _ := f.users.GetByChatAddress(context.Background(), addr)
	for _, name := range []string{model.CategoryWork, model.CategoryPersonal} {
		s, ok := f.sched[scheduleKey{u.ID, categoryID(name)}]
		if !ok {
			t.Fatalf("%s schedule missing", name)
		}
		if s.Mode != model.DeliveryBatchedDaily || s.Time1 != "09:00" || s.Time2 != "17:00" {
			t.Errorf("%s schedule = %+v", name, s)
		}
	}

	promo := f.sched[scheduleKey{u.ID, categoryID(model.CategoryPromotions)}]
	if promo.Mode != model.DeliveryBatchedWeekly || promo.WeeklyDay == nil || *promo.WeeklyDay != time.Monday || promo.WeeklyTime != "09:00" {
		t.Errorf("promotions schedule = %+v", promo)
	}

	pref := f.prefs[u.ID]
	if pref == nil || !pref.OnboardingCompleted || pref.PromoHandling != model.PromoWeekly {
		t.Errorf("preference = %+v", pref)
	}
	if !strings.Contains(f.last(), "You're all set") {
		t.Errorf("completion = %q", f.last())
	}
	if f.scratch() != (Scratch{}) {
		t.Errorf("scratch not cleared: %+v", f.scratch())
	}
}

func TestCustomScheduleTimes(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		time1, time2 string
		note         bool
	}{
		{"two times", "2 8:30, 18:00", "08:30", "18:00", false},
		{"one time", "only 07:15 please", "07:15", "", false},
		{"unreadable", "no", "09:00", "17:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.send("hi")
			f.link()
			f.send("done")
			f.send("2")
			f.send(tt.reply)

			u, _ := f.users.GetByChatAddress(context.Background(), addr)
			s := f.sched[scheduleKey{u.ID, categoryID(model.CategoryWork)}]
			if s.Time1 != tt.time1 || s.Time2 != tt.time2 {
				t.Errorf("times = %q/%q, want %q/%q", s.Time1, s.Time2, tt.time1, tt.time2)
			}
			promo := f.sched[scheduleKey{u.ID, categoryID(model.CategoryPromotions)}]
			if promo.Mode != model.DeliveryBatchedDaily || promo.Time1 != "18:00" {
				t.Errorf("daily promotions schedule = %+v", promo)
			}

			noted := false
			for _, m := range f.chat.out[addr] {
				if m == msgScheduleNote {
					noted = true
				}
			}
			if noted != tt.note {
				t.Errorf("schedule note sent = %v, want %v", noted, tt.note)
			}
		})
	}
}

func TestResolveFromPersistedState(t *testing.T) {
	t.Run("completed user", func(t *testing.T) {
		f := newFixture(t)
		f.users.byAddr[addr] = &model.User{ID: 7, ChatAddress: addr}
		f.accounts[7] = true
		f.prefs[7] = &model.Preference{UserID: 7, OnboardingCompleted: true}

		msg := f.send("hey")
		if !strings.Contains(msg, `Type "compose"`) {
			t.Errorf("help = %q", msg)
		}
		if got := f.phase(); got != (Active{Step: StepIdle}) {
			t.Errorf("phase = %s", got.Name())
		}
	})

	t.Run("linked but not onboarded", func(t *testing.T) {
		f := newFixture(t)
		f.users.byAddr[addr] = &model.User{ID: 7, ChatAddress: addr}
		f.accounts[7] = true

		f.send("anything")
		if got := f.phase(); got != (Onboarding{Stage: StageCollectingPromo}) {
			t.Errorf("phase = %s", got.Name())
		}
	})

	t.Run("known user without account", func(t *testing.T) {
		f := newFixture(t)
		f.users.byAddr[addr] = &model.User{ID: 7, ChatAddress: addr}

		msg := f.send("hi")
		if !strings.Contains(msg, "Welcome") {
			t.Errorf("want welcome, got %q", msg)
		}
	})
}

func TestComposeEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.onboard()

	if msg := f.send("Compose"); msg != msgAskRecipient {
		t.Errorf("compose = %q", msg)
	}
	if msg := f.send("ana"); !strings.Contains(msg, "Drafting email to Ana Souza (ana@corp.com)") {
		t.Errorf("recipient = %q", msg)
	}
	if got := f.phase(); got != (Active{Step: StepComposingBody}) {
		t.Fatalf("phase = %s", got.Name())
	}

	msg := f.send("tell her the meeting moved to 3pm")
	if !strings.Contains(msg, "Subject: Meeting moved") || !strings.Contains(msg, "the meeting moved to 3pm") {
		t.Errorf("draft = %q", msg)
	}
	if got := f.phase(); got != (Active{Step: StepConfirmingDraft}) {
		t.Fatalf("phase = %s", got.Name())
	}
	if f.model.contexts[0] != "Email to ana@corp.com" {
		t.Errorf("draft context = %q", f.model.contexts[0])
	}

	if msg := f.send("SEND"); msg != msgSent {
		t.Errorf("send = %q", msg)
	}
	if len(f.mail.outgoing) != 1 {
		t.Fatalf("sent %d emails, want 1", len(f.mail.outgoing))
	}
	out := f.mail.outgoing[0]
	if out.to != "ana@corp.com" || out.subject != "Meeting moved" || out.body != "Hi Ana, the meeting moved to 3pm." {
		t.Errorf("outgoing = %+v", out)
	}
	if got := f.phase(); got != (Active{Step: StepIdle}) {
		t.Errorf("phase = %s", got.Name())
	}
	if f.scratch() != (Scratch{}) {
		t.Errorf("scratch not cleared: %+v", f.scratch())
	}
}

func TestComposeRecipientResolution(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		advance bool
	}{
		{"multiple candidates listed", "bob", "Found multiple contacts", false},
		{"no candidates", "zed", `No contacts found for "zed"`, false},
		{"raw address", "carol@new.io", "Drafting email to carol@new.io", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.onboard()
			f.send("new email")

			msg := f.send(tt.query)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("reply = %q, want %q", msg, tt.want)
			}
			want := Phase(Active{Step: StepComposingTo})
			if tt.advance {
				want = Active{Step: StepComposingBody}
			}
			if got := f.phase(); got != want {
				t.Errorf("phase = %s, want %s", got.Name(), want.Name())
			}
		})
	}
}

func TestContactListShowsAtMostThree(t *testing.T) {
	f := newFixture(t)
	f.onboard()
	f.send("compose")

	msg := f.send("bob")
	if strings.Contains(msg, "4. ") || !strings.Contains(msg, "3. ") {
		t.Errorf("list = %q", msg)
	}
}

func TestReply(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		f := newFixture(t)
		f.onboard()
		if msg := f.send("reply"); msg != msgNoRecentEmail {
			t.Errorf("reply = %q", msg)
		}
		if got := f.phase(); got != (Active{Step: StepIdle}) {
			t.Errorf("phase = %s", got.Name())
		}
	})

	t.Run("with history", func(t *testing.T) {
		f := newFixture(t)
		f.onboard()
		f.meta.latest = &model.EmailMetadata{ProviderID: "gm-9", Sender: "boss@corp.com", Subject: "Q3 plan", Summary: "Needs review"}

		msg := f.send("reply")
		if !strings.Contains(msg, "Replying to boss@corp.com (Re: Q3 plan)") {
			t.Errorf("reply = %q", msg)
		}
		s := f.scratch()
		if s.To != "boss@corp.com" || s.Subject != "Re: Q3 plan" || s.ReplyToID != "gm-9" || !strings.Contains(s.Context, "Needs review") {
			t.Errorf("scratch = %+v", s)
		}

		f.send("sounds good, will review today")
		if f.model.contexts[0] != s.Context {
			t.Errorf("draft context = %q", f.model.contexts[0])
		}
		f.send("send")
		if len(f.mail.outgoing) != 1 || f.mail.outgoing[0].subject != "Re: Q3 plan" {
			t.Errorf("outgoing = %+v", f.mail.outgoing)
		}
	})
}

func TestVoiceNote(t *testing.T) {
	voice := InboundMessage{From: addr, MediaURL: "https://media/1", MediaType: "audio/ogg"}

	t.Run("transcribed", func(t *testing.T) {
		f := newFixture(t)
		f.onboard()
		f.send("compose")
		f.send("ana")
		f.chat.media["https://media/1"] = []byte("ogg")
		f.model.transcript = " tell Ana I'm running late "

		f.sendMsg(voice)
		if f.model.instructions[0] != "tell Ana I'm running late" {
			t.Errorf("instruction = %q", f.model.instructions[0])
		}
		out := f.chat.out[addr]
		if out[len(out)-2] != msgTranscribing {
			t.Errorf("no transcribing ack: %q", out[len(out)-2])
		}
		if got := f.phase(); got != (Active{Step: StepConfirmingDraft}) {
			t.Errorf("phase = %s", got.Name())
		}
	})

	t.Run("download fails", func(t *testing.T) {
		f := newFixture(t)
		f.onboard()
		f.send("compose")
		f.send("ana")
		f.chat.downloadErr = errors.New("404")

		if msg := f.sendMsg(voice); msg != msgVoiceFailed {
			t.Errorf("reply = %q", msg)
		}
		if got := f.phase(); got != (Active{Step: StepComposingBody}) {
			t.Errorf("phase = %s", got.Name())
		}
		if len(f.model.instructions) != 0 {
			t.Error("draft generated without a transcript")
		}
	})

	t.Run("transcription fails", func(t *testing.T) {
		f := newFixture(t)
		f.onboard()
		f.send("compose")
		f.send("ana")
		f.chat.media["https://media/1"] = []byte("ogg")
		f.model.transcribeErr = errors.New("whisper 500")

		if msg := f.sendMsg(voice); msg != msgVoiceFailed {
			t.Errorf("reply = %q", msg)
		}
		if got := f.phase(); got != (Active{Step: StepComposingBody}) {
			t.Errorf("phase = %s", got.Name())
		}
	})
}

func TestDraftFailureStaysComposing(t *testing.T) {
	f := newFixture(t)
	f.onboard()
	f.send("compose")
	f.send("ana")
	f.model.draftErr = errors.New("timeout")

	if msg := f.send("hello"); msg != msgDraftFailed {
		t.Errorf("reply = %q", msg)
	}
	if got := f.phase(); got != (Active{Step: StepComposingBody}) {
		t.Errorf("phase = %s", got.Name())
	}

	f.model.draftErr = nil
	f.send("hello")
	if got := f.phase(); got != (Active{Step: StepConfirmingDraft}) {
		t.Errorf("retry phase = %s", got.Name())
	}
}

func TestRevision(t *testing.T) {
	f := newFixture(t)
	f.onboard()
	f.send("compose")
	f.send("ana")
	f.send("meeting moved")

	f.model.revised = "Hi Ana, quick note: the meeting is now at 3pm."
	msg := f.send("make it shorter")
	if !strings.HasPrefix(msg, "Revised draft:") || !strings.Contains(msg, "Subject: Meeting moved") || !strings.Contains(msg, "now at 3pm") {
		t.Errorf("revised = %q", msg)
	}
	if got := f.phase(); got != (Active{Step: StepConfirmingDraft}) {
		t.Errorf("phase = %s", got.Name())
	}

	f.model.reviseErr = errors.New("model down")
	if msg := f.send("more formal"); msg != msgReviseFailed {
		t.Errorf("revise failure = %q", msg)
	}
	if f.scratch().Body != f.model.revised {
		t.Errorf("body changed after failed revision: %q", f.scratch().Body)
	}

	f.send("send")
	if f.mail.outgoing[0].body != f.model.revised {
		t.Errorf("sent body = %q", f.mail.outgoing[0].body)
	}
}

func TestSendFailureStaysConfirming(t *testing.T) {
	f := newFixture(t)
	f.onboard()
	f.send("compose")
	f.send("ana")
	f.send("meeting moved")
	f.mail.sendErr = errors.New("invalid_grant")

	if msg := f.send("send"); msg != msgSendFailed {
		t.Errorf("reply = %q", msg)
	}
	if got := f.phase(); got != (Active{Step: StepConfirmingDraft}) {
		t.Errorf("phase = %s", got.Name())
	}
	if f.scratch().To != "ana@corp.com" || f.scratch().Body == "" {
		t.Errorf("draft lost: %+v", f.scratch())
	}

	f.mail.sendErr = nil
	if msg := f.send("send"); msg != msgSent {
		t.Errorf("retry = %q", msg)
	}
}

func TestHandleMessageRequiresSender(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.HandleMessage(context.Background(), InboundMessage{Text: "hi"}); err == nil {
		t.Fatal("expected error for missing sender")
	}
}

func TestOnboardingStagesCannotHoldSteps(t *testing.T) {
	f := newFixture(t)
	f.send("hi")
	if msg := f.send("compose"); msg != msgLinkReprompt {
		t.Errorf("compose during onboarding = %q", msg)
	}
	if _, ok := f.phase().(Onboarding); !ok {
		t.Errorf("phase = %s", f.phase().Name())
	}
}

var _ Model = (*llm.Client)(nil)
