package llm

import "inboxwhats/internal/model"

// Classification is the model's verdict for a single inbound email.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	IsUrgent   bool    `json:"isUrgent"`
	Summary    string  `json:"summary"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

type WritingStyle struct {
	Tone               string  `json:"tone"`
	AvgParagraphLength int     `json:"avgParagraphLength"`
	UsesGreeting       bool    `json:"usesGreeting"`
	GreetingStyle      string  `json:"greetingStyle"`
	UsesSignature      bool    `json:"usesSignature"`
	SignatureStyle     string  `json:"signatureStyle"`
	FormalityScore     float64 `json:"formalityScore"`
}

// ApplyTo copies the inferred attributes onto p, clamping formality into [0,1].
func (w WritingStyle) ApplyTo(p *model.StyleProfile) {
	p.Tone = w.Tone
	p.AvgParagraphLength = w.AvgParagraphLength
	p.UsesGreeting = w.UsesGreeting
	p.GreetingStyle = w.GreetingStyle
	p.UsesSignature = w.UsesSignature
	p.SignatureStyle = w.SignatureStyle
	p.FormalityScore = clamp01(w.FormalityScore)
}

type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// LabeledEmail is one training example for rule learning.
type LabeledEmail struct {
	From     string
	Subject  string
	Category string
}

type LearnedRule struct {
	RuleType     string  `json:"ruleType"`
	Pattern      string  `json:"pattern"`
	CategoryName string  `json:"categoryName"`
	Confidence   float64 `json:"confidence"`
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
