package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	gm "google.golang.org/api/gmail/v1"
)

func toMessage(msg *gm.Message) Message {
	var headers map[string]string
	if msg.Payload != nil {
		headers = headerMap(msg.Payload.Headers)
	}
	received := time.Now()
	if msg.InternalDate > 0 {
		received = time.UnixMilli(msg.InternalDate)
	}
	return Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		From:       headers["From"],
		To:         headers["To"],
		Subject:    headers["Subject"],
		Snippet:    msg.Snippet,
		ReceivedAt: received,
	}
}

// BuildRawMessage renders an RFC 5322 plain-text message.
func BuildRawMessage(to, subject, body string) ([]byte, error) {
	addrs, err := mail.ParseAddressList(to)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("invalid recipient %q: empty address list", to)
	}

	var h mail.Header
	h.SetAddressList("To", addrs)
	h.SetSubject(strings.NewReplacer("\r", "", "\n", " ").Replace(subject))
	h.SetDate(time.Now())
	h.Set("Content-Type", "text/plain; charset=utf-8")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

// extractBody returns the text/plain body, searching nested multiparts.
func extractBody(payload *gm.MessagePart) string {
	if payload == nil {
		return ""
	}
	if strings.HasPrefix(payload.MimeType, "text/plain") && payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			return decoded
		}
	}
	for _, part := range payload.Parts {
		if body := extractBody(part); body != "" {
			return body
		}
	}
	// Single-part messages that are not labelled text/plain.
	if len(payload.Parts) == 0 && payload.MimeType == "" && payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			return decoded
		}
	}
	return ""
}

func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Name] = h.Value
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url content, padded or not.
func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
