package conversation

import (
	"fmt"
	"strings"

	"inboxwhats/internal/categorizer"
	"inboxwhats/internal/contact"
)

const (
	msgLinkNotFound   = "I don't see your email connected yet. Please click the link and authorize access, then reply 'done'."
	msgLinkReprompt   = "Please click the link above to connect your Gmail, then reply 'done'."
	msgScanning       = "✅ Email connected! Now I'm scanning your inbox to learn your preferences and writing style... 🕵️‍♂️\n\nThis will take just a moment."
	msgPromoReprompt  = "Please reply with 1, 2, 3, or 4."
	msgScheduleNote   = "Okay! I couldn't read those times, so I'll stick to 9:00 and 17:00 for now."
	msgAskRecipient   = "Who would you like to email? (Type a name or email address)"
	msgNoRecentEmail  = "I can't find any recent emails to reply to."
	msgTranscribing   = "Transcribing your voice note..."
	msgVoiceFailed    = "Sorry, I failed to process your voice note. Please type your message."
	msgDraftFailed    = "Sorry, I couldn't write a draft right now. Please try again."
	msgReviseFailed   = "Sorry, I couldn't revise the draft right now. Please send your feedback again."
	msgAskBody        = "What would you like to say? (You can send a voice note 🎤)"
	msgSent           = "Email sent! 🚀"
	msgSendFailed     = "Failed to send email. Please try again."
	msgDraftFooter    = "Reply \"Send\" to send, or type feedback to revise."
	maxListedContacts = 3
)

func welcomeMessage(linkURL string) string {
	return "👋 Welcome to InboxWhats!\n\n" +
		"I'm your intelligent email assistant. I'll help you manage your emails directly from WhatsApp.\n\n" +
		"To get started, I need to connect to your email account.\n\n" +
		"Click this link to connect your Gmail:\n" + linkURL + "\n\n" +
		"Reply \"done\" when you've connected your account."
}

func promoMenuMessage(suggestions []categorizer.Suggestion) string {
	var b strings.Builder
	b.WriteString("I've analyzed your email style! 📝\n")
	if len(suggestions) > 0 {
		names := make([]string, 0, len(suggestions))
		for _, s := range suggestions {
			names = append(names, s.DisplayName)
		}
		fmt.Fprintf(&b, "Your recent mail looks like: %s.\n", strings.Join(names, ", "))
	}
	b.WriteString("\nNow, let's set up your notifications.\n\n")
	b.WriteString("How do you want to handle *Promotional* emails (ads, newsletters)?\n\n")
	b.WriteString("1️⃣ Weekly Digest (Recommended)\n")
	b.WriteString("2️⃣ Daily Digest\n")
	b.WriteString("3️⃣ Never\n")
	b.WriteString("4️⃣ Immediate (Not recommended)\n\n")
	b.WriteString("Reply with the number.")
	return b.String()
}

const scheduleMessage = "Got it!\n\n" +
	"Now for *Work* and *Personal* emails.\n" +
	"I'll send you summaries at *9:00 AM* and *5:00 PM* daily.\n\n" +
	"Is this okay?\n" +
	"1️⃣ Yes, perfect\n" +
	"2️⃣ No, reply with your own times (e.g. 08:30 18:00)\n\n" +
	"Reply with 1 or your times."

func completionMessage(time1, time2 string) string {
	when := time1
	if time2 != "" {
		when = time1 + " & " + time2
	}
	return "🎉 *You're all set!*\n\n" +
		"I've learned your writing style and set up your notifications.\n\n" +
		"*What I can do:*\n" +
		"📧 *Summaries*: I'll send you digests at " + when + ".\n" +
		"✍️ *Compose*: Type \"compose\" to write a new email.\n" +
		"↩️ *Reply*: Type \"reply\" to answer the last email I showed you.\n\n" +
		"Try sending me a voice note to draft an email! 🎤"
}

func helpMessage(text string) string {
	return fmt.Sprintf("I received your message: %q\n\nType \"compose\" to start a new email or \"reply\" to respond to the last email.", text)
}

func noContactMessage(query string) string {
	return fmt.Sprintf("No contacts found for %q. Please try again or type an email address.", query)
}

func contactListMessage(contacts []contact.Contact) string {
	if len(contacts) > maxListedContacts {
		contacts = contacts[:maxListedContacts]
	}
	lines := make([]string, 0, len(contacts))
	for i, c := range contacts {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, formatContact(c)))
	}
	return "Found multiple contacts:\n" + strings.Join(lines, "\n") + "\n\nPlease type the email address to confirm."
}

func formatContact(c contact.Contact) string {
	if c.Name == "" || c.Name == c.Email {
		return c.Email
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Email)
}

func draftingMessage(recipient string) string {
	return fmt.Sprintf("Drafting email to %s.\n\n%s", recipient, msgAskBody)
}

func replyingMessage(sender, subject string) string {
	return fmt.Sprintf("Replying to %s (%s).\n\nWhat would you like to say?", sender, subject)
}

func draftMessage(subject, body string) string {
	return fmt.Sprintf("Here is your draft:\n\nSubject: %s\n\n%s\n\n%s", subject, body, msgDraftFooter)
}

func revisedMessage(subject, body string) string {
	return fmt.Sprintf("Revised draft:\n\nSubject: %s\n\n%s\n\n%s", subject, body, msgDraftFooter)
}

func replyContext(sender, subject, summary string) string {
	return fmt.Sprintf("Replying to email from %s with subject %q. Original snippet: %s", sender, subject, summary)
}
