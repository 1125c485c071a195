package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
	"inboxwhats/pkg/util"
)

const secret = "link-secret"

type fakeOAuth struct {
	tok *oauth2.Token
	err error
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example/consent?state=" + state
}

func (f *fakeOAuth) Exchange(context.Context, string) (*oauth2.Token, error) {
	return f.tok, f.err
}

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeAccounts struct {
	saved []model.EmailAccount
}

func (f *fakeAccounts) Upsert(_ context.Context, a *model.EmailAccount) error {
	a.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, *a)
	return nil
}

func state(t *testing.T, userID int64, chat string) string {
	t.Helper()
	s, err := util.GenerateLinkToken(userID, chat, secret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newLinker(oauth *fakeOAuth, accounts *fakeAccounts) *Linker {
	users := fakeUsers{7: {ID: 7, ChatAddress: "whatsapp:+1555"}}
	return NewLinker(oauth, users, accounts, secret, zap.NewNop())
}

func TestConsentURL(t *testing.T) {
	l := newLinker(&fakeOAuth{}, &fakeAccounts{})

	s := state(t, 7, "whatsapp:+1555")
	u, err := l.ConsentURL(s)
	if err != nil || !strings.HasSuffix(u, s) {
		t.Errorf("ConsentURL() = %q, %v", u, err)
	}
	if _, err := l.ConsentURL("garbage"); !errors.Is(err, util.ErrLinkTokenInvalid) {
		t.Errorf("ConsentURL(garbage) error = %v", err)
	}
}

func TestAttachWithCode(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	accounts := &fakeAccounts{}
	l := newLinker(&fakeOAuth{tok: &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}}, accounts)

	acc, err := l.Attach(context.Background(), state(t, 7, "whatsapp:+1555"), Credentials{Code: "c", EmailAddress: "me@example.com"})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if acc.UserID != 7 || acc.Provider != model.ProviderGmail || acc.RefreshToken != "rt" || acc.AccessToken != "at" {
		t.Errorf("account = %+v", acc)
	}
	if acc.TokenExpiry == nil || !acc.TokenExpiry.Equal(expiry) {
		t.Errorf("expiry = %v", acc.TokenExpiry)
	}
	if len(accounts.saved) != 1 {
		t.Errorf("saved %d accounts", len(accounts.saved))
	}
}

func TestAttachWithRefreshToken(t *testing.T) {
	accounts := &fakeAccounts{}
	l := newLinker(&fakeOAuth{}, accounts)

	acc, err := l.Attach(context.Background(), state(t, 7, "whatsapp:+1555"), Credentials{RefreshToken: "rt"})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if acc.AccessToken != "" || acc.TokenExpiry == nil || acc.TokenExpiry.After(time.Now()) {
		t.Errorf("account should force a refresh: %+v", acc)
	}
}

func TestAttachRejects(t *testing.T) {
	tests := []struct {
		name  string
		state func(t *testing.T) string
		creds Credentials
		oauth *fakeOAuth
		want  error
	}{
		{
			name:  "bad token",
			state: func(*testing.T) string { return "nope" },
			creds: Credentials{RefreshToken: "rt"},
			oauth: &fakeOAuth{},
			want:  util.ErrLinkTokenInvalid,
		},
		{
			name:  "unknown user",
			state: func(t *testing.T) string { return state(t, 99, "whatsapp:+1555") },
			creds: Credentials{RefreshToken: "rt"},
			oauth: &fakeOAuth{},
			want:  repository.ErrNotFound,
		},
		{
			name:  "address mismatch",
			state: func(t *testing.T) string { return state(t, 7, "whatsapp:+1999") },
			creds: Credentials{RefreshToken: "rt"},
			oauth: &fakeOAuth{},
			want:  ErrAddressMismatch,
		},
		{
			name:  "no credentials",
			state: func(t *testing.T) string { return state(t, 7, "whatsapp:+1555") },
			oauth: &fakeOAuth{},
		},
		{
			name:  "exchange without refresh token",
			state: func(t *testing.T) string { return state(t, 7, "whatsapp:+1555") },
			creds: Credentials{Code: "c"},
			oauth: &fakeOAuth{tok: &oauth2.Token{AccessToken: "at"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &fakeAccounts{}
			l := newLinker(tt.oauth, accounts)
			_, err := l.Attach(context.Background(), tt.state(t), tt.creds)
			if err == nil {
				t.Fatal("Attach() succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if len(accounts.saved) != 0 {
				t.Error("account stored on failure")
			}
		})
	}
}
