// Package gmail is the mail-provider adapter: it fetches inbox and sent
// messages and sends mail on behalf of a linked user.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"inboxwhats/internal/model"
	"inboxwhats/pkg/metrics"
	"inboxwhats/pkg/otel"
)

const provider = "gmail"

// ErrInvalidGrant means the stored refresh token was revoked or expired; the
// user has to link the account again.
var ErrInvalidGrant = errors.New("gmail authorization revoked")

// Scopes requested when the account is linked.
var Scopes = []string{
	gm.GmailReadonlyScope,
	gm.GmailSendScope,
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenURL and Endpoint override Google's defaults (tests, proxies).
	TokenURL string
	Endpoint string
}

// AccountStore loads and refreshes stored credentials.
type AccountStore interface {
	Get(ctx context.Context, userID int64, provider string) (*model.EmailAccount, error)
	UpdateAccessToken(ctx context.Context, userID int64, provider, token string, expiry time.Time) error
}

// Message is the provider-neutral view of one mail item.
type Message struct {
	ID         string
	ThreadID   string
	From       string
	To         string
	Subject    string
	Snippet    string
	Body       string
	ReceivedAt time.Time
}

type Client struct {
	oauth    *oauth2.Config
	endpoint string
	accounts AccountStore
	logger   *zap.Logger
}

func NewClient(cfg Config, accounts AccountStore, logger *zap.Logger) *Client {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		endpoint: cfg.Endpoint,
		accounts: accounts,
		logger:   logger,
	}
}

// AuthCodeURL builds the consent URL; state carries the signed link token.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.oauth.Exchange(ctx, code)
}

// FetchNewEmails lists the newest inbox messages, headers and snippet only.
func (c *Client) FetchNewEmails(ctx context.Context, userID int64, limit int64) ([]Message, error) {
	var out []Message
	err := c.call(ctx, userID, "fetch_inbox", func(ctx context.Context, svc *gm.Service) error {
		resp, err := svc.Users.Messages.List("me").Q("label:INBOX").MaxResults(limit).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("list inbox: %w", err)
		}

		out = make([]Message, 0, len(resp.Messages))
		for _, ref := range resp.Messages {
			msg, err := svc.Users.Messages.Get("me", ref.Id).
				Format("metadata").
				MetadataHeaders("From", "To", "Subject").
				Context(ctx).
				Do()
			if err != nil {
				return fmt.Errorf("get message %s: %w", ref.Id, err)
			}
			out = append(out, toMessage(msg))
		}
		return nil
	})
	return out, err
}

// ScanSentEmails returns sent messages with a readable body, newest first.
func (c *Client) ScanSentEmails(ctx context.Context, userID int64, limit int64) ([]Message, error) {
	var out []Message
	err := c.call(ctx, userID, "scan_sent", func(ctx context.Context, svc *gm.Service) error {
		resp, err := svc.Users.Messages.List("me").Q("label:SENT").MaxResults(limit).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("list sent: %w", err)
		}

		for _, ref := range resp.Messages {
			msg, err := svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
			if err != nil {
				// Skip individual message failures.
				c.logger.Debug("Skipping unreadable sent message", zap.String("message_id", ref.Id), zap.Error(err))
				continue
			}
			m := toMessage(msg)
			if m.Body = extractBody(msg.Payload); m.Body != "" {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// SendMessage sends a plain-text mail and returns the provider message id.
func (c *Client) SendMessage(ctx context.Context, userID int64, to, subject, body string) (string, error) {
	raw, err := BuildRawMessage(to, subject, body)
	if err != nil {
		return "", err
	}

	var id string
	err = c.call(ctx, userID, "send", func(ctx context.Context, svc *gm.Service) error {
		sent, err := svc.Users.Messages.Send("me", &gm.Message{
			Raw: base64.RawURLEncoding.EncodeToString(raw),
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		id = sent.Id
		return nil
	})
	return id, err
}

func (c *Client) call(ctx context.Context, userID int64, operation string, fn func(context.Context, *gm.Service) error) error {
	ctx, span := otel.ProviderSpan(ctx, provider, operation)
	defer span.End()

	start := time.Now()
	err := c.withService(ctx, userID, fn)
	metrics.RecordProviderCall(provider, operation, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) withService(ctx context.Context, userID int64, fn func(context.Context, *gm.Service) error) error {
	account, err := c.accounts.Get(ctx, userID, model.ProviderGmail)
	if err != nil {
		return fmt.Errorf("load gmail account for user %d: %w", userID, err)
	}

	tok := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    "Bearer",
	}
	if account.TokenExpiry != nil {
		tok.Expiry = *account.TokenExpiry
	}

	ts := &persistingTokenSource{
		base:     c.oauth.TokenSource(ctx, tok),
		last:     tok.AccessToken,
		userID:   userID,
		accounts: c.accounts,
		logger:   c.logger,
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create gmail service: %w", err)
	}

	if err := fn(ctx, svc); err != nil {
		return c.classify(userID, err)
	}
	return nil
}

// classify maps a revoked grant onto ErrInvalidGrant; everything else passes through.
func (c *Client) classify(userID int64, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
		c.logger.Error("Gmail authorization revoked, re-authentication required",
			zap.Int64("user_id", userID),
		)
		return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	return err
}

// persistingTokenSource writes refreshed access tokens back to the store.
type persistingTokenSource struct {
	base     oauth2.TokenSource
	userID   int64
	accounts AccountStore
	logger   *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed {
		// Non-fatal: the refresh token still works next time.
		if err := s.accounts.UpdateAccessToken(context.Background(), s.userID, model.ProviderGmail, tok.AccessToken, tok.Expiry); err != nil {
			s.logger.Warn("Failed to persist refreshed access token",
				zap.Int64("user_id", s.userID),
				zap.Error(err),
			)
		}
	}
	return tok, nil
}
