package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"inboxwhats/internal/contact"
	"inboxwhats/internal/model"
	"inboxwhats/internal/repository"
)

const voiceNoteFilename = "voice_note.ogg"

func (e *Engine) handleIdle(ctx context.Context, c *Context, text, lower string) error {
	switch lower {
	case "compose", "new email":
		c.Scratch = Scratch{}
		if err := e.say(ctx, c, msgAskRecipient); err != nil {
			return err
		}
		e.moveTo(c, Active{Step: StepComposingTo})
		return nil
	case "reply":
		return e.startReply(ctx, c)
	default:
		return e.say(ctx, c, helpMessage(text))
	}
}

func (e *Engine) startReply(ctx context.Context, c *Context) error {
	last, err := e.Metadata.LatestNotified(ctx, c.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return e.say(ctx, c, msgNoRecentEmail)
	}
	if err != nil {
		return fmt.Errorf("load last notified email: %w", err)
	}

	c.Scratch = Scratch{
		To:        last.Sender,
		Subject:   replySubject(last.Subject),
		ReplyToID: last.ProviderID,
		Context:   replyContext(last.Sender, last.Subject, last.Summary),
	}
	if err := e.say(ctx, c, replyingMessage(last.Sender, c.Scratch.Subject)); err != nil {
		return err
	}
	e.moveTo(c, Active{Step: StepComposingBody})
	return nil
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// handleRecipient accepts a query that resolves to one contact, or anything
// that looks like an address.
func (e *Engine) handleRecipient(ctx context.Context, c *Context, text string) error {
	if text == "" {
		return e.say(ctx, c, msgAskRecipient)
	}

	contacts, err := e.Contacts.SearchContacts(ctx, c.UserID, text)
	if err != nil {
		e.logger.Warn("Contact search failed", zap.Int64("user_id", c.UserID), zap.Error(err))
		contacts = nil
	}

	var recipient, label string
	switch {
	case len(contacts) == 1:
		recipient, label = contacts[0].Email, formatContact(contacts[0])
	case strings.Contains(text, "@"):
		recipient, label = text, text
	case len(contacts) == 0:
		return e.say(ctx, c, noContactMessage(text))
	default:
		return e.say(ctx, c, contactListMessage(contacts))
	}

	c.Scratch.To = recipient
	if err := e.say(ctx, c, draftingMessage(label)); err != nil {
		return err
	}
	e.moveTo(c, Active{Step: StepComposingBody})
	return nil
}

func isAudio(msg InboundMessage) bool {
	return msg.MediaURL != "" && strings.HasPrefix(msg.MediaType, "audio/")
}

func (e *Engine) handleBody(ctx context.Context, c *Context, msg InboundMessage, text string) error {
	if isAudio(msg) {
		transcript, ok, err := e.transcribe(ctx, c, msg)
		if err != nil || !ok {
			return err
		}
		text = transcript
	}
	if text == "" {
		return e.say(ctx, c, msgAskBody)
	}

	style := e.styleFor(ctx, c.UserID)
	draftContext := c.Scratch.Context
	if draftContext == "" {
		draftContext = "Email to " + c.Scratch.To
	}

	draft, err := e.Model.GenerateEmailDraft(ctx, text, style, draftContext)
	if err != nil {
		e.logger.Error("Draft generation failed", zap.Int64("user_id", c.UserID), zap.Error(err))
		return e.say(ctx, c, msgDraftFailed)
	}

	// A reply keeps its "Re:" subject.
	if c.Scratch.ReplyToID == "" || c.Scratch.Subject == "" {
		c.Scratch.Subject = draft.Subject
	}
	c.Scratch.Body = draft.Body
	e.moveTo(c, Active{Step: StepConfirmingDraft})
	return e.say(ctx, c, draftMessage(c.Scratch.Subject, c.Scratch.Body))
}

// transcribe reports ok=false after telling the user the voice note failed.
func (e *Engine) transcribe(ctx context.Context, c *Context, msg InboundMessage) (string, bool, error) {
	if err := e.say(ctx, c, msgTranscribing); err != nil {
		return "", false, err
	}

	audio, err := e.Chat.DownloadMedia(ctx, msg.MediaURL)
	if err == nil {
		var text string
		text, err = e.Model.TranscribeAudio(ctx, audio, voiceNoteFilename)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), true, nil
		}
	}

	e.logger.Error("Failed to process voice note", zap.Int64("user_id", c.UserID), zap.Error(err))
	return "", false, e.say(ctx, c, msgVoiceFailed)
}

func (e *Engine) handleConfirm(ctx context.Context, c *Context, text, lower string) error {
	if lower == "send" {
		return e.sendDraft(ctx, c)
	}
	if text == "" {
		return e.say(ctx, c, msgDraftFooter)
	}

	revised, err := e.Model.ReviseEmailDraft(ctx, c.Scratch.Body, text, e.styleFor(ctx, c.UserID))
	if err != nil {
		e.logger.Error("Draft revision failed", zap.Int64("user_id", c.UserID), zap.Error(err))
		return e.say(ctx, c, msgReviseFailed)
	}
	c.Scratch.Body = revised
	return e.say(ctx, c, revisedMessage(c.Scratch.Subject, revised))
}

func (e *Engine) sendDraft(ctx context.Context, c *Context) error {
	d := c.Scratch
	id, err := e.Mail.SendMessage(ctx, c.UserID, d.To, d.Subject, d.Body)
	if err != nil {
		e.logger.Error("Failed to send email", zap.Int64("user_id", c.UserID), zap.Error(err))
		return e.say(ctx, c, msgSendFailed)
	}

	e.logger.Info("Email sent",
		zap.Int64("user_id", c.UserID),
		zap.String("message_id", id),
		zap.Bool("reply", d.ReplyToID != ""),
	)
	c.Scratch = Scratch{}
	e.moveTo(c, Active{Step: StepIdle})
	return e.say(ctx, c, msgSent)
}

func (e *Engine) styleFor(ctx context.Context, userID int64) model.StyleProfile {
	p, err := e.Styles.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			e.logger.Warn("Failed to load style profile, using default", zap.Int64("user_id", userID), zap.Error(err))
		}
		return model.DefaultStyleProfile()
	}
	return *p
}

var _ ContactSearcher = (*contact.Service)(nil)
