package llm

import (
	"fmt"
	"strings"

	"inboxwhats/internal/model"
)

func classifyPrompt(from, subject, snippet string) string {
	return fmt.Sprintf(`You are an email classification assistant. Classify this email into ONE of these categories:

Categories:
- banks: Bills, expenses, promotional offers from financial institutions
- apps: Purchase confirmations, crypto transfers, app notifications
- promotions: Campaign ads, time-sensitive deals (Black Friday, flash sales)
- work: Professional correspondence, work-related emails
- personal: Passport renewals, legal matters, hotel/flight confirmations, personal appointments

Email details:
From: %s
Subject: %s
Preview: %s

Respond in JSON format:
{
  "category": "one of: banks|apps|promotions|work|personal",
  "confidence": 0.0-1.0,
  "isUrgent": true/false,
  "summary": "one-line summary of the email",
  "reasoning": "brief explanation of why this category"
}`, from, subject, snippet)
}

func stylePrompt(samples []string) string {
	var b strings.Builder
	b.WriteString("Analyze the writing style from these email/message samples:\n\n")
	for i, s := range samples {
		fmt.Fprintf(&b, "Sample %d:\n%s\n\n", i+1, s)
	}
	b.WriteString(`Respond in JSON format:
{
  "tone": "formal|semi-formal|casual",
  "avgParagraphLength": number (average words per paragraph),
  "usesGreeting": true/false,
  "greetingStyle": "Hi|Hello|Dear|Hey|etc" (most common),
  "usesSignature": true/false,
  "signatureStyle": "Best|Regards|Cheers|Thanks|etc" (most common),
  "formalityScore": 0.0-1.0 (0=very casual, 1=very formal)
}`)
	return b.String()
}

func formalityLabel(score float64) string {
	switch {
	case score > 0.7:
		return "Formal"
	case score > 0.4:
		return "Semi-formal"
	default:
		return "Casual"
	}
}

func draftPrompt(instruction string, style model.StyleProfile, context string) string {
	greeting := "No greeting"
	if style.UsesGreeting {
		greeting = style.GreetingStyle
	}
	signature := "No signature"
	if style.UsesSignature {
		signature = style.SignatureStyle
	}

	var b strings.Builder
	b.WriteString("You are writing an email for the user. Follow their writing style exactly.\n\n")
	fmt.Fprintf(&b, "Writing Style:\n- Tone: %s\n- Greeting: %s\n- Signature: %s\n- Formality: %s\n- Paragraph length: ~%d words\n\n",
		style.Tone, greeting, signature, formalityLabel(style.FormalityScore), style.AvgParagraphLength)
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n", context)
	}
	fmt.Fprintf(&b, "User instruction: %s\n\n", instruction)
	b.WriteString(`Respond in JSON format:
{
  "subject": "appropriate subject line",
  "body": "email body only"
}`)
	return b.String()
}

func revisePrompt(original, feedback string, style model.StyleProfile) string {
	return fmt.Sprintf(`You are revising an email draft based on user feedback.

Original draft:
%s

User feedback: %s

Revise the email incorporating the feedback while maintaining the writing style:
- Tone: %s
- Formality: %s

Provide only the revised email body.`, original, feedback, style.Tone, formalityLabel(style.FormalityScore))
}

func learnPrompt(emails []LabeledEmail) string {
	var b strings.Builder
	b.WriteString("Analyze these categorized emails and extract categorization rules.\n\n")
	for i, e := range emails {
		fmt.Fprintf(&b, "%d. From: %s, Subject: %s → Category: %s\n", i+1, e.From, e.Subject, e.Category)
	}
	b.WriteString(`
Extract patterns like:
- sender_domain: emails from @domain.com go to category X
- sender_email: emails from specific@email.com go to category Y
- subject_keyword: emails with keyword "invoice" go to category Z
- from_contains: sender display names containing a word go to category W

Respond in JSON format:
{
  "rules": [
    {
      "ruleType": "sender_domain|sender_email|subject_keyword|from_contains",
      "pattern": "the pattern to match",
      "categoryName": "banks|apps|promotions|work|personal",
      "confidence": 0.0-1.0
    }
  ]
}`)
	return b.String()
}
