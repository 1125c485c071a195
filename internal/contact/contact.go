// Package contact derives an address book from the To headers of sent mail.
package contact

import (
	"context"
	"sort"
	"strings"

	"github.com/emersion/go-message/mail"

	"inboxwhats/internal/gmail"
)

const sentSampleSize = 50

type Contact struct {
	Name      string
	Email     string
	Frequency int
}

// SentMail is the slice of the mail adapter this package needs.
type SentMail interface {
	ScanSentEmails(ctx context.Context, userID int64, limit int64) ([]gmail.Message, error)
}

type Service struct {
	mail SentMail
}

func NewService(m SentMail) *Service {
	return &Service{mail: m}
}

// SearchContacts returns contacts whose name or address contains query,
// most frequently mailed first.
func (s *Service) SearchContacts(ctx context.Context, userID int64, query string) ([]Contact, error) {
	sent, err := s.mail.ScanSentEmails(ctx, userID, sentSampleSize)
	if err != nil {
		return nil, err
	}
	headers := make([]string, 0, len(sent))
	for _, m := range sent {
		headers = append(headers, m.To)
	}
	return Filter(Rank(headers), query), nil
}

// Rank counts every recipient across the given To headers.
func Rank(toHeaders []string) []Contact {
	byAddr := make(map[string]*Contact)
	for _, h := range toHeaders {
		if strings.TrimSpace(h) == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(h)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			key := strings.ToLower(a.Address)
			c, ok := byAddr[key]
			if !ok {
				name := a.Name
				if name == "" {
					name, _, _ = strings.Cut(a.Address, "@")
				}
				c = &Contact{Name: name, Email: a.Address}
				byAddr[key] = c
			}
			c.Frequency++
		}
	}

	out := make([]Contact, 0, len(byAddr))
	for _, c := range byAddr {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Email < out[j].Email
	})
	return out
}

func Filter(contacts []Contact, query string) []Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Contact
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out
}
