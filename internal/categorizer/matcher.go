package categorizer

import (
	"errors"
	"fmt"
	"strings"

	"inboxwhats/internal/model"
)

var ErrUnknownRuleType = errors.New("unknown rule type")

// Email is the part of a message the categorizer looks at.
type Email struct {
	From    string
	Subject string
	Snippet string
}

// Matcher is one learned rule predicate. The set of implementations is closed.
type Matcher interface {
	Match(e Email) bool
	isMatcher()
}

type senderDomain struct{ pattern string }

// Match is case-sensitive; learned domains are stored as seen in headers.
func (m senderDomain) Match(e Email) bool { return strings.Contains(e.From, m.pattern) }
func (senderDomain) isMatcher()            {}

type senderEmail struct{ pattern string }

func (m senderEmail) Match(e Email) bool { return strings.EqualFold(e.From, m.pattern) }
func (senderEmail) isMatcher()            {}

type subjectKeyword struct{ pattern string }

func (m subjectKeyword) Match(e Email) bool { return containsFold(e.Subject, m.pattern) }
func (subjectKeyword) isMatcher()            {}

type fromContains struct{ pattern string }

func (m fromContains) Match(e Email) bool { return containsFold(e.From, m.pattern) }
func (fromContains) isMatcher()            {}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NewMatcher builds the predicate for a stored rule type.
func NewMatcher(ruleType model.RuleType, pattern string) (Matcher, error) {
	switch ruleType {
	case model.RuleSenderDomain:
		return senderDomain{pattern}, nil
	case model.RuleSenderEmail:
		return senderEmail{pattern}, nil
	case model.RuleSubjectKeyword:
		return subjectKeyword{pattern}, nil
	case model.RuleFromContains:
		return fromContains{pattern}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, ruleType)
	}
}
