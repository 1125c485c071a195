// Package account attaches mail credentials to a chat user once they have
// granted access through the signed link they received in chat.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"inboxwhats/internal/model"
	"inboxwhats/pkg/util"
)

var ErrAddressMismatch = errors.New("link token was issued for a different chat address")

type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type AccountStore interface {
	Upsert(ctx context.Context, a *model.EmailAccount) error
}

type Linker struct {
	oauth    Exchanger
	users    UserStore
	accounts AccountStore
	secret   string
	logger   *zap.Logger
}

func NewLinker(oauth Exchanger, users UserStore, accounts AccountStore, secret string, logger *zap.Logger) *Linker {
	return &Linker{
		oauth:    oauth,
		users:    users,
		accounts: accounts,
		secret:   secret,
		logger:   logger,
	}
}

// ConsentURL checks the state token and returns the provider consent page
// that will come back with it.
func (l *Linker) ConsentURL(state string) (string, error) {
	if _, _, err := util.ParseLinkToken(state, l.secret); err != nil {
		return "", err
	}
	return l.oauth.AuthCodeURL(state), nil
}

// Credentials is what the operator supplies: an authorization code to
// exchange, or a refresh token obtained elsewhere.
type Credentials struct {
	Code         string
	RefreshToken string
	EmailAddress string
}

// Attach verifies state, resolves its user and stores the account.
func (l *Linker) Attach(ctx context.Context, state string, creds Credentials) (*model.EmailAccount, error) {
	userID, chat, err := util.ParseLinkToken(state, l.secret)
	if err != nil {
		return nil, err
	}
	user, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.ChatAddress != chat {
		return nil, ErrAddressMismatch
	}

	acc := &model.EmailAccount{
		UserID:       userID,
		Provider:     model.ProviderGmail,
		EmailAddress: creds.EmailAddress,
	}
	switch {
	case creds.Code != "":
		tok, err := l.oauth.Exchange(ctx, creds.Code)
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}
		if tok.RefreshToken == "" {
			return nil, errors.New("provider returned no refresh token")
		}
		acc.AccessToken = tok.AccessToken
		acc.RefreshToken = tok.RefreshToken
		if !tok.Expiry.IsZero() {
			expiry := tok.Expiry
			acc.TokenExpiry = &expiry
		}
	case creds.RefreshToken != "":
		acc.RefreshToken = creds.RefreshToken
		// forces a refresh on first use
		expired := time.Unix(0, 0)
		acc.TokenExpiry = &expired
	default:
		return nil, errors.New("either an authorization code or a refresh token is required")
	}

	if err := l.accounts.Upsert(ctx, acc); err != nil {
		return nil, fmt.Errorf("store account: %w", err)
	}
	l.logger.Info("Mail account linked",
		zap.Int64("user_id", userID),
		zap.Int64("account_id", acc.ID),
	)
	return acc, nil
}
