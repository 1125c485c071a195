package model

import "time"

// Category names of the fixed catalog.
const (
	CategoryBanks      = "banks"
	CategoryApps       = "apps"
	CategoryPromotions = "promotions"
	CategoryWork       = "work"
	CategoryPersonal   = "personal"
)

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Catalog is the seeded category set.
var Catalog = []Category{
	{Name: CategoryBanks, DisplayName: "Banks", Description: "Bills, statements and offers from financial institutions", Icon: "🏦"},
	{Name: CategoryApps, DisplayName: "Apps", Description: "Purchase confirmations, transfers and app notifications", Icon: "📱"},
	{Name: CategoryPromotions, DisplayName: "Promotions", Description: "Campaigns, newsletters and time-limited deals", Icon: "🎯"},
	{Name: CategoryWork, DisplayName: "Work", Description: "Professional correspondence", Icon: "💼"},
	{Name: CategoryPersonal, DisplayName: "Personal", Description: "Travel, appointments, legal and personal matters", Icon: "✉️"},
}

// IsKnownCategory reports whether name belongs to the catalog.
func IsKnownCategory(name string) bool {
	for _, c := range Catalog {
		if c.Name == name {
			return true
		}
	}
	return false
}

type RuleType string

const (
	RuleSenderDomain   RuleType = "sender_domain"
	RuleSenderEmail    RuleType = "sender_email"
	RuleSubjectKeyword RuleType = "subject_keyword"
	RuleFromContains   RuleType = "from_contains"
)

type CategoryRule struct {
	ID           int64
	UserID       int64
	CategoryID   int64
	CategoryName string
	RuleType     RuleType
	Pattern      string
	Confidence   float64
}

// EmailMetadata is one row per provider message id. Notified only ever moves false -> true.
type EmailMetadata struct {
	ID         int64
	UserID     int64
	ProviderID string
	ThreadID   string
	Sender     string
	Subject    string
	Summary    string
	CategoryID *int64
	IsUrgent   bool
	ReceivedAt time.Time
	Notified   bool
	NotifiedAt *time.Time
}
