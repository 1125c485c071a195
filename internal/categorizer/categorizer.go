// Package categorizer assigns inbound mail to one of the fixed categories,
// first through the user's learned rules and then through the model.
package categorizer

import (
	"context"

	"go.uber.org/zap"

	"inboxwhats/internal/llm"
	"inboxwhats/internal/model"
	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/metrics"
)

// RuleThreshold is exclusive: a rule at exactly this confidence never fires.
const RuleThreshold = 0.7

const (
	fallbackCategory   = model.CategoryPromotions
	fallbackConfidence = 0.5
)

// Result sources, used as a metric label.
const (
	SourceRule     = "rule"
	SourceModel    = "model"
	SourceFallback = "fallback"
)

type RuleStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.CategoryRule, error)
	Create(ctx context.Context, rule *model.CategoryRule) error
}

type CategoryStore interface {
	Seed(ctx context.Context, catalog []model.Category) error
	GetByName(ctx context.Context, name string) (*model.Category, error)
	List(ctx context.Context) ([]model.Category, error)
}

type Classifier interface {
	ClassifyEmail(ctx context.Context, from, subject, snippet string) (*llm.Classification, error)
}

type Result struct {
	Category   string
	Confidence float64
	IsUrgent   bool
	// Summary is empty when a rule decided; callers fall back to the snippet.
	Summary string
	Source  string
}

type Categorizer struct {
	rules      RuleStore
	categories CategoryStore
	model      Classifier
	logger     *zap.Logger
}

func New(rules RuleStore, categories CategoryStore, classifier Classifier, logger *zap.Logger) *Categorizer {
	return &Categorizer{
		rules:      rules,
		categories: categories,
		model:      classifier,
		logger:     logger,
	}
}

// Categorize never fails: any error degrades to promotions/0.5/not urgent.
func (c *Categorizer) Categorize(ctx context.Context, userID int64, e Email) Result {
	log := logger.WithTrace(ctx, c.logger).With(zap.Int64("user_id", userID))

	rules, err := c.rules.ListByUser(ctx, userID)
	if err != nil {
		log.Warn("Failed to load category rules, using model only", zap.Error(err))
	}

	if r, ok := matchRules(rules, e, log); ok {
		metrics.IncrementCategorized(SourceRule, r.Category)
		return r
	}

	cls, err := c.model.ClassifyEmail(ctx, e.From, e.Subject, e.Snippet)
	if err != nil {
		log.Warn("Model classification failed, using fallback category", zap.Error(err))
		return c.fallback(e)
	}
	if !model.IsKnownCategory(cls.Category) {
		log.Warn("Model returned unknown category, using fallback category",
			zap.String("category", cls.Category),
		)
		return c.fallback(e)
	}

	metrics.IncrementCategorized(SourceModel, cls.Category)
	return Result{
		Category:   cls.Category,
		Confidence: cls.Confidence,
		IsUrgent:   cls.IsUrgent,
		Summary:    cls.Summary,
		Source:     SourceModel,
	}
}

// matchRules expects rules sorted by descending confidence; the first firing rule wins.
func matchRules(rules []model.CategoryRule, e Email, log *zap.Logger) (Result, bool) {
	for _, rule := range rules {
		if rule.Confidence <= RuleThreshold {
			continue
		}
		m, err := NewMatcher(rule.RuleType, rule.Pattern)
		if err != nil {
			log.Debug("Skipping rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if !m.Match(e) {
			continue
		}
		log.Debug("Matched rule",
			zap.String("rule_type", string(rule.RuleType)),
			zap.String("pattern", rule.Pattern),
			zap.String("category", rule.CategoryName),
		)
		// Rule hits do not ask the model, so urgency stays false.
		return Result{
			Category:   rule.CategoryName,
			Confidence: rule.Confidence,
			Source:     SourceRule,
		}, true
	}
	return Result{}, false
}

func (c *Categorizer) fallback(e Email) Result {
	metrics.IncrementCategorized(SourceFallback, fallbackCategory)
	return Result{
		Category:   fallbackCategory,
		Confidence: fallbackConfidence,
		Summary:    e.Subject,
		Source:     SourceFallback,
	}
}

func (c *Categorizer) CategoryByName(ctx context.Context, name string) (*model.Category, error) {
	return c.categories.GetByName(ctx, name)
}

func (c *Categorizer) AllCategories(ctx context.Context) ([]model.Category, error) {
	return c.categories.List(ctx)
}

// SeedCategories upserts the fixed catalog.
func (c *Categorizer) SeedCategories(ctx context.Context) error {
	if err := c.categories.Seed(ctx, model.Catalog); err != nil {
		return err
	}
	c.logger.Info("Initialized email categories", zap.Int("count", len(model.Catalog)))
	return nil
}
