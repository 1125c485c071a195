package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inboxwhats/config"
	"inboxwhats/internal/categorizer"
	"inboxwhats/internal/chat"
	"inboxwhats/internal/contact"
	"inboxwhats/internal/conversation"
	"inboxwhats/internal/digest"
	"inboxwhats/internal/dispatcher"
	"inboxwhats/internal/gmail"
	"inboxwhats/internal/llm"
	"inboxwhats/internal/poller"
	"inboxwhats/internal/repository"
	"inboxwhats/pkg/db"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/mq"
	"inboxwhats/pkg/otel"
	"inboxwhats/pkg/outbox"
	"inboxwhats/pkg/redis"
	"inboxwhats/pkg/util"
)

// needs selects the infrastructure a command connects to. The database is
// always opened.
type needs struct {
	mq    bool
	redis bool
}

type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	pool      *pgxpool.Pool
	rdb       *goredis.Client
	publisher *mq.Publisher
	repos     *repos
	closers   []func()

	mail  *gmail.Client
	chat  *chat.Client
	model *llm.Client
}

type repos struct {
	users       *repository.UserRepository
	accounts    *repository.AccountRepository
	categories  *repository.CategoryRepository
	rules       *repository.RuleRepository
	metadata    *repository.MetadataRepository
	schedules   *repository.ScheduleRepository
	preferences *repository.PreferenceRepository
	styles      *repository.StyleRepository
	outbox      *outbox.Repository
}

func newApp(ctx context.Context, service string, n needs) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger.NewLogger(cfg.LogLevel)}
	a.closers = append(a.closers, func() { _ = a.logger.Sync() })

	shutdownTracing, err := otel.Init(cfg.Tracing(service, Version), a.logger)
	if err != nil {
		a.logger.Warn("Tracing disabled", zap.Error(err))
	} else {
		a.closers = append(a.closers, shutdownTracing)
	}

	a.pool, err = db.NewConnection(ctx, cfg.DB, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	a.closers = append(a.closers, a.pool.Close)

	if n.redis || cfg.Conversation.Store == "redis" {
		a.rdb, err = redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = a.rdb.Close() })
	}

	if n.mq {
		a.publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("mq publisher: %w", err)
		}
		a.closers = append(a.closers, a.publisher.Close)
	}

	sealer, err := util.NewSealer(cfg.Security.SealerKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("token sealer: %w", err)
	}

	outboxRepo := outbox.NewRepository(a.pool)
	a.repos = &repos{
		users:       repository.NewUserRepository(a.pool),
		accounts:    repository.NewAccountRepository(a.pool, sealer),
		categories:  repository.NewCategoryRepository(a.pool),
		rules:       repository.NewRuleRepository(a.pool),
		metadata:    repository.NewMetadataRepository(a.pool, outboxRepo),
		schedules:   repository.NewScheduleRepository(a.pool),
		preferences: repository.NewPreferenceRepository(a.pool),
		styles:      repository.NewStyleRepository(a.pool),
		outbox:      outboxRepo,
	}

	a.logger.Info("Starting "+service, zap.String("version", Version))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Clients are shared so the chat rate limit and the model circuit breaker
// apply process-wide.
func (a *app) gmailClient() *gmail.Client {
	if a.mail == nil {
		a.mail = gmail.NewClient(a.cfg.GmailClient(), a.repos.accounts, a.logger)
	}
	return a.mail
}

func (a *app) chatClient() *chat.Client {
	if a.chat == nil {
		a.chat = chat.NewClient(a.cfg.ChatClient(), a.logger)
	}
	return a.chat
}

func (a *app) llmClient() *llm.Client {
	if a.model == nil {
		a.model = llm.NewClient(a.cfg.LLMClient(), a.logger)
	}
	return a.model
}

func (a *app) categorizer(model *llm.Client) *categorizer.Categorizer {
	return categorizer.New(a.repos.rules, a.repos.categories, model, a.logger)
}

func (a *app) poller() *poller.Poller {
	leaseTTL := a.cfg.Poller.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 4 * time.Minute
	}
	return poller.New(
		a.gmailClient(),
		a.repos.accounts,
		a.repos.metadata,
		a.categorizer(a.llmClient()),
		util.NewDeduper(a.rdb, leaseTTL, a.logger),
		a.cfg.Poller.MaxResults,
		a.logger,
	)
}

func (a *app) dispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(
		a.repos.users,
		a.repos.metadata,
		a.repos.schedules,
		a.repos.categories,
		a.chatClient(),
		a.logger,
	)
}

func (a *app) batcher() *digest.Batcher {
	return digest.New(
		a.repos.schedules,
		a.repos.metadata,
		a.repos.users,
		a.repos.categories,
		a.chatClient(),
		a.logger,
	)
}

func (a *app) contextStore() conversation.ContextStore {
	if a.cfg.Conversation.Store == "redis" {
		return conversation.NewRedisContextStore(a.rdb, a.cfg.Conversation.TTL)
	}
	return conversation.NewMemoryContextStore()
}

func (a *app) engine() *conversation.Engine {
	mail := a.gmailClient()
	model := a.llmClient()
	c := a.categorizer(model)

	deps := conversation.Deps{
		Users:       a.repos.users,
		Accounts:    a.repos.accounts,
		Preferences: a.repos.preferences,
		Schedules:   a.repos.schedules,
		Styles:      a.repos.styles,
		Metadata:    a.repos.metadata,
		Categories:  c,
		Mail:        mail,
		Chat:        a.chatClient(),
		Model:       model,
		Contacts:    contact.NewService(mail),
		Inbox:       categorizer.NewLearner(c, model, a.repos.preferences, a.logger),
	}
	return conversation.NewEngine(deps, a.contextStore(), a.cfg.Engine(), a.logger)
}
