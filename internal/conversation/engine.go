// Package conversation runs the per-address chat state machine: onboarding
// first, then compose and reply flows.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"inboxwhats/internal/categorizer"
	"inboxwhats/internal/contact"
	"inboxwhats/internal/gmail"
	"inboxwhats/internal/llm"
	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/metrics"
	"inboxwhats/pkg/util"
)

// InboundMessage is one chat message after webhook decoding.
type InboundMessage struct {
	From      string
	Text      string
	MediaURL  string
	MediaType string
}

type UserStore interface {
	GetByChatAddress(ctx context.Context, addr string) (*model.User, error)
	EnsureByChatAddress(ctx context.Context, addr string) (*model.User, error)
}

type AccountStore interface {
	HasLinked(ctx context.Context, userID int64) (bool, error)
}

type PreferenceStore interface {
	Get(ctx context.Context, userID int64) (*model.Preference, error)
	Upsert(ctx context.Context, p *model.Preference) error
}

type ScheduleStore interface {
	Upsert(ctx context.Context, s *model.NotificationSchedule) error
}

type StyleStore interface {
	Get(ctx context.Context, userID int64) (*model.StyleProfile, error)
	Upsert(ctx context.Context, p *model.StyleProfile) error
}

type MetadataStore interface {
	LatestNotified(ctx context.Context, userID int64) (*model.EmailMetadata, error)
}

type CategoryLookup interface {
	CategoryByName(ctx context.Context, name string) (*model.Category, error)
}

type Mail interface {
	FetchNewEmails(ctx context.Context, userID int64, limit int64) ([]gmail.Message, error)
	ScanSentEmails(ctx context.Context, userID int64, limit int64) ([]gmail.Message, error)
	SendMessage(ctx context.Context, userID int64, to, subject, body string) (string, error)
}

type Chat interface {
	SendMessage(ctx context.Context, to, text string) error
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

type Model interface {
	AnalyzeWritingStyle(ctx context.Context, samples []string) (*llm.WritingStyle, error)
	GenerateEmailDraft(ctx context.Context, instruction string, style model.StyleProfile, context string) (*llm.Draft, error)
	ReviseEmailDraft(ctx context.Context, original, feedback string, style model.StyleProfile) (string, error)
	TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error)
}

type ContactSearcher interface {
	SearchContacts(ctx context.Context, userID int64, query string) ([]contact.Contact, error)
}

type InboxScanner interface {
	ScanInbox(ctx context.Context, userID int64, emails []categorizer.Email) []categorizer.Suggestion
}

// Deps groups the engine's collaborators. Inbox may be nil, which skips the
// onboarding inbox scan.
type Deps struct {
	Users       UserStore
	Accounts    AccountStore
	Preferences PreferenceStore
	Schedules   ScheduleStore
	Styles      StyleStore
	Metadata    MetadataStore
	Categories  CategoryLookup
	Mail        Mail
	Chat        Chat
	Model       Model
	Contacts    ContactSearcher
	Inbox       InboxScanner
}

type Config struct {
	LinkBaseURL string
	LinkSecret  string
	LinkTTL     time.Duration
}

type Engine struct {
	Deps
	cfg    Config
	store  ContextStore
	locks  *KeyedMutex
	logger *zap.Logger
}

func NewEngine(deps Deps, store ContextStore, cfg Config, logger *zap.Logger) *Engine {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 24 * time.Hour
	}
	return &Engine{
		Deps:   deps,
		cfg:    cfg,
		store:  store,
		locks:  NewKeyedMutex(),
		logger: logger,
	}
}

// HandleMessage advances the conversation of msg.From by one message.
// Messages from the same address are processed one at a time. User-facing
// failures of the model or mail provider are reported in chat and keep the
// current step; the returned error is for storage or chat delivery failures.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if msg.From == "" {
		return errors.New("conversation: message without sender")
	}
	unlock := e.locks.Lock(msg.From)
	defer unlock()

	c, err := e.resolve(ctx, msg.From)
	if err != nil {
		return fmt.Errorf("resolve context: %w", err)
	}

	stepErr := e.advance(ctx, c, msg)
	if err := e.store.Put(ctx, c); err != nil {
		return errors.Join(stepErr, fmt.Errorf("save context: %w", err))
	}
	return stepErr
}

// resolve loads the live context or rebuilds one from persisted state.
func (e *Engine) resolve(ctx context.Context, addr string) (*Context, error) {
	c, ok, err := e.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	if ok {
		return c, nil
	}

	user, err := e.Users.GetByChatAddress(ctx, addr)
	if errors.Is(err, repository.ErrNotFound) {
		return newContext(addr, 0, Onboarding{Stage: StageNew}), nil
	}
	if err != nil {
		return nil, err
	}

	linked, err := e.Accounts.HasLinked(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return newContext(addr, user.ID, Onboarding{Stage: StageNew}), nil
	}

	pref, err := e.Preferences.Get(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if pref != nil && pref.OnboardingCompleted {
		return newContext(addr, user.ID, Active{Step: StepIdle}), nil
	}
	return newContext(addr, user.ID, Onboarding{Stage: StageLinked}), nil
}

func (e *Engine) advance(ctx context.Context, c *Context, msg InboundMessage) error {
	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)

	switch p := c.Phase.(type) {
	case Onboarding:
		switch p.Stage {
		case StageNew:
			return e.handleNew(ctx, c)
		case StageAwaitingLink:
			return e.handleAwaitingLink(ctx, c, lower)
		case StageLinked:
			return e.handleLinked(ctx, c)
		case StageCollectingPromo:
			return e.handlePromo(ctx, c, lower)
		case StageCollectingSchedule:
			return e.handleSchedule(ctx, c, lower)
		case StageCollectingStyle:
			return e.finishOnboarding(ctx, c, defaultTime1, defaultTime2)
		default:
			e.logger.Warn("Unknown onboarding stage, restarting", zap.String("stage", string(p.Stage)))
			return e.handleNew(ctx, c)
		}
	case Active:
		switch p.Step {
		case StepComposingTo:
			return e.handleRecipient(ctx, c, text)
		case StepComposingBody:
			return e.handleBody(ctx, c, msg, text)
		case StepConfirmingDraft:
			return e.handleConfirm(ctx, c, text, lower)
		default:
			return e.handleIdle(ctx, c, text, lower)
		}
	default:
		return fmt.Errorf("conversation: unknown phase %T", c.Phase)
	}
}

// moveTo records a transition; the context is saved by HandleMessage.
func (e *Engine) moveTo(c *Context, next Phase) {
	if samePhase(c.Phase, next) {
		return
	}
	metrics.IncrementConversationTransition(c.Phase.Name(), next.Name())
	e.logger.Debug("Conversation transition",
		zap.String("from", logger.MaskAddress(c.Address)),
		zap.String("before", c.Phase.Name()),
		zap.String("after", next.Name()),
	)
	c.Phase = next
}

func (e *Engine) say(ctx context.Context, c *Context, text string) error {
	if err := e.Chat.SendMessage(ctx, c.Address, text); err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	return nil
}

func (e *Engine) handleNew(ctx context.Context, c *Context) error {
	user, err := e.Users.EnsureByChatAddress(ctx, c.Address)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	c.UserID = user.ID

	link, err := e.linkURL(user.ID, c.Address)
	if err != nil {
		return fmt.Errorf("build link url: %w", err)
	}
	if err := e.say(ctx, c, welcomeMessage(link)); err != nil {
		return err
	}
	e.moveTo(c, Onboarding{Stage: StageAwaitingLink})
	return nil
}

// linkURL appends a signed state token so the OAuth callback can tell which
// user asked for the link.
func (e *Engine) linkURL(userID int64, addr string) (string, error) {
	if e.cfg.LinkSecret == "" {
		return e.cfg.LinkBaseURL, nil
	}
	token, err := util.GenerateLinkToken(userID, addr, e.cfg.LinkSecret, e.cfg.LinkTTL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(e.cfg.LinkBaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("state", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *Engine) handleAwaitingLink(ctx context.Context, c *Context, lower string) error {
	if lower != "done" && lower != "connected" && lower != "linked" {
		return e.say(ctx, c, msgLinkReprompt)
	}

	linked, err := e.isLinked(ctx, c)
	if err != nil {
		return err
	}
	if !linked {
		return e.say(ctx, c, msgLinkNotFound)
	}

	e.moveTo(c, Onboarding{Stage: StageLinked})
	return e.handleLinked(ctx, c)
}

func (e *Engine) isLinked(ctx context.Context, c *Context) (bool, error) {
	if c.UserID == 0 {
		user, err := e.Users.GetByChatAddress(ctx, c.Address)
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("load user: %w", err)
		}
		c.UserID = user.ID
	}
	linked, err := e.Accounts.HasLinked(ctx, c.UserID)
	if err != nil {
		return false, fmt.Errorf("check linked account: %w", err)
	}
	return linked, nil
}
