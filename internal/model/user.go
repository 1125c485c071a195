package model

import "time"

type User struct {
	ID          int64     `json:"id"`
	ChatAddress string    `json:"chat_address"`
	CreatedAt   time.Time `json:"created_at"`
}

const ProviderGmail = "gmail"

// EmailAccount holds decrypted credentials; tokens are sealed only inside the repository.
type EmailAccount struct {
	ID           int64
	UserID       int64
	Provider     string
	EmailAddress string
	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time
}

// PromoHandling values chosen during onboarding.
const (
	PromoWeekly    = "weekly"
	PromoDaily     = "daily"
	PromoNone      = "none"
	PromoImmediate = "immediate"
)

type Preference struct {
	UserID              int64
	PromoHandling       string
	OnboardingCompleted bool
	InboxScanned        bool
}

// StyleProfile conditions draft generation. It is derived from sent mail and regenerated, never edited.
type StyleProfile struct {
	UserID             int64     `json:"user_id"`
	SampleTexts        []string  `json:"sample_texts"`
	Tone               string    `json:"tone"`
	AvgParagraphLength int       `json:"avg_paragraph_length"`
	UsesGreeting       bool      `json:"uses_greeting"`
	GreetingStyle      string    `json:"greeting_style"`
	UsesSignature      bool      `json:"uses_signature"`
	SignatureStyle     string    `json:"signature_style"`
	FormalityScore     float64   `json:"formality_score"`
	LastUpdated        time.Time `json:"last_updated"`
}

// DefaultStyleProfile is used for drafting before any sent mail has been analyzed.
func DefaultStyleProfile() StyleProfile {
	return StyleProfile{
		Tone:               "semi-formal",
		AvgParagraphLength: 50,
		UsesGreeting:       true,
		GreetingStyle:      "Hi",
		UsesSignature:      true,
		SignatureStyle:     "Best",
		FormalityScore:     0.5,
	}
}
