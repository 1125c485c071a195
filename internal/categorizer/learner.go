package categorizer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"inboxwhats/internal/llm"
	"inboxwhats/internal/model"
)

const suggestionSamples = 3

type PatternLearner interface {
	LearnCategorizationPatterns(ctx context.Context, emails []llm.LabeledEmail) ([]llm.LearnedRule, error)
}

type ScanMarker interface {
	MarkInboxScanned(ctx context.Context, userID int64) error
}

// Suggestion summarizes what a scan found for one category.
type Suggestion struct {
	CategoryName string
	DisplayName  string
	Samples      []Email
	Confidence   float64
}

type Learner struct {
	categorizer *Categorizer
	model       PatternLearner
	prefs       ScanMarker
	logger      *zap.Logger
}

func NewLearner(c *Categorizer, learner PatternLearner, prefs ScanMarker, logger *zap.Logger) *Learner {
	return &Learner{
		categorizer: c,
		model:       learner,
		prefs:       prefs,
		logger:      logger,
	}
}

// LearnPatterns asks the model for rules and persists those that reference a
// known category. Best-effort: it never fails, it returns what was stored.
func (l *Learner) LearnPatterns(ctx context.Context, userID int64, emails []llm.LabeledEmail) []model.CategoryRule {
	log := l.logger.With(zap.Int64("user_id", userID))
	if len(emails) == 0 {
		return nil
	}

	learned, err := l.model.LearnCategorizationPatterns(ctx, emails)
	if err != nil {
		log.Warn("Failed to learn categorization patterns", zap.Error(err))
		return nil
	}

	ids := make(map[string]int64)
	var stored []model.CategoryRule
	for _, lr := range learned {
		rule, ok := validRule(lr)
		if !ok {
			log.Debug("Dropping invalid learned rule", zap.Any("rule", lr))
			continue
		}

		categoryID, known := ids[lr.CategoryName]
		if !known {
			cat, err := l.categorizer.categories.GetByName(ctx, lr.CategoryName)
			if err != nil {
				log.Debug("Dropping rule for unknown category", zap.String("category", lr.CategoryName))
				continue
			}
			categoryID = cat.ID
			ids[lr.CategoryName] = categoryID
		}

		rule.UserID = userID
		rule.CategoryID = categoryID
		rule.CategoryName = lr.CategoryName
		if err := l.categorizer.rules.Create(ctx, &rule); err != nil {
			log.Warn("Failed to persist learned rule", zap.String("pattern", rule.Pattern), zap.Error(err))
			continue
		}
		stored = append(stored, rule)
	}

	log.Info("Learned categorization rules",
		zap.Int("proposed", len(learned)),
		zap.Int("stored", len(stored)),
	)
	return stored
}

func validRule(lr llm.LearnedRule) (model.CategoryRule, bool) {
	pattern := strings.TrimSpace(lr.Pattern)
	if pattern == "" || lr.Confidence < 0 || lr.Confidence > 1 {
		return model.CategoryRule{}, false
	}
	rt := model.RuleType(lr.RuleType)
	if _, err := NewMatcher(rt, pattern); err != nil {
		return model.CategoryRule{}, false
	}
	return model.CategoryRule{RuleType: rt, Pattern: pattern, Confidence: lr.Confidence}, true
}

// ScanInbox classifies a sample of inbox mail through the model, learns rules
// from the result and marks the inbox scanned. Suggestions are ordered by the
// catalog.
func (l *Learner) ScanInbox(ctx context.Context, userID int64, emails []Email) []Suggestion {
	log := l.logger.With(zap.Int64("user_id", userID))
	log.Info("Scanning inbox", zap.Int("emails", len(emails)))

	byCategory := make(map[string][]Result)
	samples := make(map[string][]Email)
	labeled := make([]llm.LabeledEmail, 0, len(emails))
	for _, e := range emails {
		r := l.categorizer.classifyWithModel(ctx, e)
		byCategory[r.Category] = append(byCategory[r.Category], r)
		if len(samples[r.Category]) < suggestionSamples {
			samples[r.Category] = append(samples[r.Category], e)
		}
		labeled = append(labeled, llm.LabeledEmail{From: e.From, Subject: e.Subject, Category: r.Category})
	}

	l.LearnPatterns(ctx, userID, labeled)

	var suggestions []Suggestion
	for _, cat := range model.Catalog {
		results := byCategory[cat.Name]
		if len(results) == 0 {
			continue
		}
		var sum float64
		for _, r := range results {
			sum += r.Confidence
		}
		suggestions = append(suggestions, Suggestion{
			CategoryName: cat.Name,
			DisplayName:  cat.DisplayName,
			Samples:      samples[cat.Name],
			Confidence:   sum / float64(len(results)),
		})
	}

	if err := l.prefs.MarkInboxScanned(ctx, userID); err != nil {
		log.Warn("Failed to mark inbox scanned", zap.Error(err))
	}
	return suggestions
}

// classifyWithModel skips the rules so a scan labels mail independently of
// what was learned before.
func (c *Categorizer) classifyWithModel(ctx context.Context, e Email) Result {
	cls, err := c.model.ClassifyEmail(ctx, e.From, e.Subject, e.Snippet)
	if err != nil || !model.IsKnownCategory(cls.Category) {
		return Result{Category: fallbackCategory, Confidence: fallbackConfidence, Summary: e.Subject, Source: SourceFallback}
	}
	return Result{Category: cls.Category, Confidence: cls.Confidence, IsUrgent: cls.IsUrgent, Summary: cls.Summary, Source: SourceModel}
}
