package conversation

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"inboxwhats/internal/categorizer"
	"inboxwhats/internal/contact"
	"inboxwhats/internal/gmail"
	"inboxwhats/internal/llm"
	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	byAddr map[string]*model.User
	nextID int64
}

func (f *fakeUsers) GetByChatAddress(_ context.Context, addr string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byAddr[addr]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) EnsureByChatAddress(_ context.Context, addr string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byAddr[addr]; ok {
		return u, nil
	}
	f.nextID++
	u := &model.User{ID: f.nextID, ChatAddress: addr}
	f.byAddr[addr] = u
	return u, nil
}

type fakeAccounts map[int64]bool

func (f fakeAccounts) HasLinked(_ context.Context, userID int64) (bool, error) { return f[userID], nil }

type fakePreferences map[int64]*model.Preference

func (f fakePreferences) Get(_ context.Context, userID int64) (*model.Preference, error) {
	if p, ok := f[userID]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f fakePreferences) Upsert(_ context.Context, p *model.Preference) error {
	cp := *p
	f[p.UserID] = &cp
	return nil
}

type scheduleKey struct{ userID, categoryID int64 }

type fakeSchedules map[scheduleKey]model.NotificationSchedule

func (f fakeSchedules) Upsert(_ context.Context, s *model.NotificationSchedule) error {
	f[scheduleKey{s.UserID, s.CategoryID}] = *s
	return nil
}

type fakeStyles struct {
	profiles map[int64]*model.StyleProfile
	upserts  int
}

func (f *fakeStyles) Get(_ context.Context, userID int64) (*model.StyleProfile, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStyles) Upsert(_ context.Context, p *model.StyleProfile) error {
	f.upserts++
	cp := *p
	f.profiles[p.UserID] = &cp
	return nil
}

type fakeMetadata struct {
	latest *model.EmailMetadata
}

func (f *fakeMetadata) LatestNotified(context.Context, int64) (*model.EmailMetadata, error) {
	if f.latest == nil {
		return nil, repository.ErrNotFound
	}
	return f.latest, nil
}

type fakeCategories struct{}

func (fakeCategories) CategoryByName(_ context.Context, name string) (*model.Category, error) {
	for i, c := range model.Catalog {
		if c.Name == name {
			c.ID = int64(i + 1)
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func categoryID(name string) int64 {
	c, _ := fakeCategories{}.CategoryByName(context.Background(), name)
	return c.ID
}

type outgoingMail struct {
	userID            int64
	to, subject, body string
}

type fakeMail struct {
	sent      []gmail.Message
	inbox     []gmail.Message
	scanCalls int
	outgoing  []outgoingMail
	sendErr   error
}

func (f *fakeMail) FetchNewEmails(context.Context, int64, int64) ([]gmail.Message, error) {
	return f.inbox, nil
}

func (f *fakeMail) ScanSentEmails(_ context.Context, _ int64, limit int64) ([]gmail.Message, error) {
	f.scanCalls++
	if int64(len(f.sent)) > limit {
		return f.sent[:limit], nil
	}
	return f.sent, nil
}

func (f *fakeMail) SendMessage(_ context.Context, userID int64, to, subject, body string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.outgoing = append(f.outgoing, outgoingMail{userID, to, subject, body})
	return "gm-1", nil
}

type fakeChat struct {
	mu          sync.Mutex
	out         map[string][]string
	media       map[string][]byte
	downloadErr error
}

func (f *fakeChat) SendMessage(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out[to] = append(f.out[to], text)
	return nil
}

func (f *fakeChat) DownloadMedia(_ context.Context, mediaURL string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	b, ok := f.media[mediaURL]
	if !ok {
		return nil, errors.New("media not found")
	}
	return b, nil
}

type fakeModel struct {
	style         *llm.WritingStyle
	styleErr      error
	styleSamples  []string
	draft         *llm.Draft
	draftErr      error
	instructions  []string
	contexts      []string
	revised       string
	reviseErr     error
	transcript    string
	transcribeErr error
}

func (f *fakeModel) AnalyzeWritingStyle(_ context.Context, samples []string) (*llm.WritingStyle, error) {
	f.styleSamples = samples
	return f.style, f.styleErr
}

func (f *fakeModel) GenerateEmailDraft(_ context.Context, instruction string, _ model.StyleProfile, ctx string) (*llm.Draft, error) {
	f.instructions = append(f.instructions, instruction)
	f.contexts = append(f.contexts, ctx)
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	return f.draft, nil
}

func (f *fakeModel) ReviseEmailDraft(context.Context, string, string, model.StyleProfile) (string, error) {
	return f.revised, f.reviseErr
}

func (f *fakeModel) TranscribeAudio(context.Context, []byte, string) (string, error) {
	return f.transcript, f.transcribeErr
}

type fakeContacts []contact.Contact

func (f fakeContacts) SearchContacts(_ context.Context, _ int64, query string) ([]contact.Contact, error) {
	return contact.Filter(f, query), nil
}

type fakeScanner struct {
	calls int
}

func (f *fakeScanner) ScanInbox(_ context.Context, _ int64, emails []categorizer.Email) []categorizer.Suggestion {
	f.calls++
	if len(emails) == 0 {
		return nil
	}
	return []categorizer.Suggestion{{CategoryName: model.CategoryWork, DisplayName: "Work"}}
}

const (
	addr       = "whatsapp:+15550001111"
	linkSecret = "test-secret"
)

type fixture struct {
	t        *testing.T
	users    *fakeUsers
	accounts fakeAccounts
	prefs    fakePreferences
	sched    fakeSchedules
	styles   *fakeStyles
	meta     *fakeMetadata
	mail     *fakeMail
	chat     *fakeChat
	model    *fakeModel
	scanner  *fakeScanner
	store    *MemoryContextStore
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		users:    &fakeUsers{byAddr: make(map[string]*model.User)},
		accounts: fakeAccounts{},
		prefs:    fakePreferences{},
		sched:    fakeSchedules{},
		styles:   &fakeStyles{profiles: make(map[int64]*model.StyleProfile)},
		meta:     &fakeMetadata{},
		mail: &fakeMail{
			sent: []gmail.Message{
				{To: "Ana Souza <ana@corp.com>", Body: "<p>Hi Ana,</p><p>See you at 10 &amp; bring the deck.</p>"},
				{To: "bob@corp.com", Body: ""},
			},
			inbox: []gmail.Message{{ID: "i1", From: "boss@corp.com", Subject: "Plan"}},
		},
		chat:    &fakeChat{out: make(map[string][]string), media: make(map[string][]byte)},
		model:   &fakeModel{style: &llm.WritingStyle{Tone: "casual", FormalityScore: 0.2}, draft: &llm.Draft{Subject: "Meeting moved", Body: "Hi Ana, the meeting moved to 3pm."}},
		scanner: &fakeScanner{},
		store:   NewMemoryContextStore(),
	}
	deps := Deps{
		Users:       f.users,
		Accounts:    f.accounts,
		Preferences: f.prefs,
		Schedules:   f.sched,
		Styles:      f.styles,
		Metadata:    f.meta,
		Categories:  fakeCategories{},
		Mail:        f.mail,
		Chat:        f.chat,
		Model:       f.model,
		Contacts: fakeContacts{
			{Name: "Ana Souza", Email: "ana@corp.com", Frequency: 5},
			{Name: "Bob Lee", Email: "bob@corp.com", Frequency: 3},
			{Name: "Bob Stone", Email: "bstone@home.net", Frequency: 2},
			{Name: "Bobby Tables", Email: "bobby@db.org", Frequency: 1},
			{Name: "Bobo", Email: "bobo@circus.io", Frequency: 1},
		},
		Inbox: f.scanner,
	}
	f.engine = NewEngine(deps, f.store, Config{LinkBaseURL: "https://inbox.example.com/auth/google", LinkSecret: linkSecret}, zap.NewNop())
	return f
}

func (f *fixture) send(text string) string {
	f.t.Helper()
	return f.sendMsg(InboundMessage{From: addr, Text: text})
}

func (f *fixture) sendMsg(msg InboundMessage) string {
	f.t.Helper()
	if err := f.engine.HandleMessage(context.Background(), msg); err != nil {
		f.t.Fatalf("HandleMessage(%q) error = %v", msg.Text, err)
	}
	return f.last()
}

func (f *fixture) last() string {
	out := f.chat.out[addr]
	if len(out) == 0 {
		return ""
	}
	return out[len(out)-1]
}

func (f *fixture) phase() Phase {
	f.t.Helper()
	c, ok, _ := f.store.Get(context.Background(), addr)
	if !ok {
		f.t.Fatal("no context stored")
	}
	return c.Phase
}

func (f *fixture) scratch() Scratch {
	c, _, _ := f.store.Get(context.Background(), addr)
	return c.Scratch
}

func (f *fixture) link() {
	u, _ := f.users.GetByChatAddress(context.Background(), addr)
	f.accounts[u.ID] = true
}

// onboard drives a fresh address to the steady state.
func (f *fixture) onboard() {
	f.t.Helper()
	f.send("hi")
	f.link()
	f.send("done")
	f.send("1")
	f.send("1")
	if got := f.phase(); got != (Active{Step: StepIdle}) {
		f.t.Fatalf("after onboarding phase = %v", got.Name())
	}
}

func stateParam(t *testing.T, msg string) string {
	t.Helper()
	for _, line := range strings.Split(msg, "\n") {
		if strings.HasPrefix(line, "https://") {
			u, err := url.Parse(line)
			if err != nil {
				t.Fatalf("parse link: %v", err)
			}
			return u.Query().Get("state")
		}
	}
	t.Fatalf("no link in %q", msg)
	return ""
}
