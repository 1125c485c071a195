// Package chat delivers WhatsApp messages through Twilio and fetches media
// attached to inbound messages.
package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"inboxwhats/pkg/logger"
	"inboxwhats/pkg/metrics"
	"inboxwhats/pkg/otel"
	"inboxwhats/pkg/util"
)

const (
	provider        = "twilio"
	whatsappPrefix  = "whatsapp:"
	defaultBaseURL  = "https://api.twilio.com"
	maxMediaBytes   = 16 << 20
	maxErrBodyBytes = 512
)

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	// RatePerSecond throttles outbound sends across the process.
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.AccountSID == "" {
		logger.Warn("Twilio credentials not configured, messages will be logged only")
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:     logger,
	}
}

// WhatsAppAddress adds the channel prefix Twilio expects when it is missing.
func WhatsAppAddress(addr string) string {
	if strings.HasPrefix(addr, whatsappPrefix) {
		return addr
	}
	return whatsappPrefix + addr
}

// SendMessage delivers text to a chat address.
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	to = WhatsAppAddress(to)

	if c.cfg.AccountSID == "" {
		c.logger.Info("[MOCK] Would send chat message",
			zap.String("to", logger.MaskAddress(to)),
			zap.Int("length", len(text)),
		)
		return nil
	}

	return c.call(ctx, "send", func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		form := url.Values{}
		form.Set("To", to)
		form.Set("From", WhatsAppAddress(c.cfg.From))
		form.Set("Body", text)

		endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
			return &util.StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
		}
		return nil
	})
}

// DownloadMedia fetches an inbound attachment with the account credentials.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	var data []byte
	err := c.call(ctx, "download_media", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
		if err != nil {
			return err
		}
		if c.cfg.AccountSID != "" {
			req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
			return &util.StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
		return err
	})
	return data, err
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := otel.ProviderSpan(ctx, provider, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.RecordProviderCall(provider, operation, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
