package conversation

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"inboxwhats/internal/categorizer"
	"inboxwhats/internal/model"
)

const (
	defaultTime1 = "09:00"
	defaultTime2 = "17:00"

	promoDailyTime  = "18:00"
	promoWeeklyTime = "09:00"
	promoWeeklyDay  = time.Monday

	sentScanLimit     = 100
	styleAnalyzeLimit = 10
	styleKeepSamples  = 5
	inboxScanLimit    = 20
)

var promoChoices = map[string]string{
	"1": model.PromoWeekly,
	"2": model.PromoDaily,
	"3": model.PromoNone,
	"4": model.PromoImmediate,
}

var textPolicy = bluemonday.StrictPolicy()

// handleLinked learns the user's writing style and inbox shape, then asks
// for the promotions preference. Both scans are best-effort.
func (e *Engine) handleLinked(ctx context.Context, c *Context) error {
	if err := e.say(ctx, c, msgScanning); err != nil {
		return err
	}

	e.learnStyle(ctx, c.UserID)
	suggestions := e.scanInbox(ctx, c.UserID)

	if err := e.say(ctx, c, promoMenuMessage(suggestions)); err != nil {
		return err
	}
	e.moveTo(c, Onboarding{Stage: StageCollectingPromo})
	return nil
}

func (e *Engine) learnStyle(ctx context.Context, userID int64) {
	log := e.logger.With(zap.Int64("user_id", userID))

	sent, err := e.Mail.ScanSentEmails(ctx, userID, sentScanLimit)
	if err != nil {
		log.Error("Failed to scan sent emails", zap.Error(err))
		return
	}
	var bodies []string
	for _, m := range sent {
		if body := plainText(m.Body); body != "" {
			bodies = append(bodies, body)
		}
	}
	if len(bodies) == 0 {
		log.Info("No sent mail to learn style from")
		return
	}

	style, err := e.Model.AnalyzeWritingStyle(ctx, bodies[:min(len(bodies), styleAnalyzeLimit)])
	if err != nil {
		log.Error("Failed to analyze writing style", zap.Error(err))
		return
	}

	profile := model.DefaultStyleProfile()
	profile.UserID = userID
	profile.SampleTexts = bodies[:min(len(bodies), styleKeepSamples)]
	style.ApplyTo(&profile)
	if err := e.Styles.Upsert(ctx, &profile); err != nil {
		log.Error("Failed to save style profile", zap.Error(err))
		return
	}
	log.Info("Style profile updated", zap.String("tone", profile.Tone), zap.Int("samples", len(bodies)))
}

func (e *Engine) scanInbox(ctx context.Context, userID int64) []categorizer.Suggestion {
	if e.Inbox == nil {
		return nil
	}
	msgs, err := e.Mail.FetchNewEmails(ctx, userID, inboxScanLimit)
	if err != nil {
		e.logger.Error("Failed to fetch inbox sample", zap.Int64("user_id", userID), zap.Error(err))
		return nil
	}
	emails := make([]categorizer.Email, 0, len(msgs))
	for _, m := range msgs {
		emails = append(emails, categorizer.Email{From: m.From, Subject: m.Subject, Snippet: m.Snippet})
	}
	return e.Inbox.ScanInbox(ctx, userID, emails)
}

// plainText strips markup from a sent body so HTML mail does not skew the
// style analysis.
func plainText(body string) string {
	text := html.UnescapeString(textPolicy.Sanitize(body))
	return strings.TrimSpace(text)
}

func (e *Engine) handlePromo(ctx context.Context, c *Context, lower string) error {
	choice, ok := promoChoices[lower]
	if !ok {
		return e.say(ctx, c, msgPromoReprompt)
	}
	c.Scratch = Scratch{PromoHandling: choice}
	if err := e.say(ctx, c, scheduleMessage); err != nil {
		return err
	}
	e.moveTo(c, Onboarding{Stage: StageCollectingSchedule})
	return nil
}

func (e *Engine) handleSchedule(ctx context.Context, c *Context, lower string) error {
	if lower == "1" || strings.Contains(lower, "yes") {
		return e.finishOnboarding(ctx, c, defaultTime1, defaultTime2)
	}
	times := ExtractTimes(lower)
	switch len(times) {
	case 0:
		if err := e.say(ctx, c, msgScheduleNote); err != nil {
			return err
		}
		return e.finishOnboarding(ctx, c, defaultTime1, defaultTime2)
	case 1:
		return e.finishOnboarding(ctx, c, times[0], "")
	default:
		return e.finishOnboarding(ctx, c, times[0], times[1])
	}
}

// finishOnboarding persists the preference and the work, personal and
// promotions schedules, then moves the user to the steady state.
func (e *Engine) finishOnboarding(ctx context.Context, c *Context, time1, time2 string) error {
	promo := c.Scratch.PromoHandling
	if promo == "" {
		promo = model.PromoWeekly
	}

	for _, name := range []string{model.CategoryWork, model.CategoryPersonal} {
		cat, err := e.Categories.CategoryByName(ctx, name)
		if err != nil {
			return fmt.Errorf("load category %s: %w", name, err)
		}
		err = e.Schedules.Upsert(ctx, &model.NotificationSchedule{
			UserID:     c.UserID,
			CategoryID: cat.ID,
			Mode:       model.DeliveryBatchedDaily,
			Time1:      time1,
			Time2:      time2,
		})
		if err != nil {
			return fmt.Errorf("save %s schedule: %w", name, err)
		}
	}

	promoCat, err := e.Categories.CategoryByName(ctx, model.CategoryPromotions)
	if err != nil {
		return fmt.Errorf("load category %s: %w", model.CategoryPromotions, err)
	}
	promoSchedule := PromoSchedule(promo)
	promoSchedule.UserID = c.UserID
	promoSchedule.CategoryID = promoCat.ID
	if err := e.Schedules.Upsert(ctx, &promoSchedule); err != nil {
		return fmt.Errorf("save promotions schedule: %w", err)
	}

	err = e.Preferences.Upsert(ctx, &model.Preference{
		UserID:              c.UserID,
		PromoHandling:       promo,
		OnboardingCompleted: true,
	})
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}

	c.Scratch = Scratch{}
	e.moveTo(c, Active{Step: StepIdle})
	e.logger.Info("Onboarding completed",
		zap.Int64("user_id", c.UserID),
		zap.String("promo", promo),
		zap.String("time1", time1),
		zap.String("time2", time2),
	)
	return e.say(ctx, c, completionMessage(time1, time2))
}

// PromoSchedule maps a promotions choice to its schedule. "none" is a daily
// batch without times, which the digest never picks up.
func PromoSchedule(promo string) model.NotificationSchedule {
	switch promo {
	case model.PromoWeekly:
		day := promoWeeklyDay
		return model.NotificationSchedule{Mode: model.DeliveryBatchedWeekly, WeeklyDay: &day, WeeklyTime: promoWeeklyTime}
	case model.PromoDaily:
		return model.NotificationSchedule{Mode: model.DeliveryBatchedDaily, Time1: promoDailyTime}
	case model.PromoImmediate:
		return model.NotificationSchedule{Mode: model.DeliveryImmediate}
	default:
		return model.NotificationSchedule{Mode: model.DeliveryBatchedDaily}
	}
}

// IsValidHHMM reports whether s is a zero-padded 24-hour time.
func IsValidHHMM(s string) bool {
	t, err := time.Parse(model.ClockLayout, s)
	return err == nil && t.Format(model.ClockLayout) == s
}

// ExtractTimes returns up to two times found in text, normalized to HH:MM.
// "8:30" becomes "08:30"; anything unparsable is ignored.
func ExtractTimes(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\n' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		t, err := time.Parse(model.ClockLayout, f)
		if err != nil {
			continue
		}
		out = append(out, t.Format(model.ClockLayout))
		if len(out) == 2 {
			break
		}
	}
	return out
}
