package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"inboxwhats/internal/model"
	"inboxwhats/pkg/circuitbreaker"
	"inboxwhats/pkg/metrics"
	"inboxwhats/pkg/otel"
	"inboxwhats/pkg/trace"
	"inboxwhats/pkg/util"
)

const provider = "llm"

var ErrEmptyResponse = errors.New("model returned no content")

type Config struct {
	BaseURL            string
	APIKey             string
	ClassifyModel      string
	DraftModel         string
	TranscribeModel    string
	TranscribeLanguage string
	Timeout            time.Duration
}

// Client talks to an OpenAI-compatible API. Every call goes through one
// circuit breaker so a provider outage fails fast instead of stalling workers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         circuitbreaker.NewCircuitBreaker("llm", cbConfig),
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ClassifyEmail returns the model's category, urgency and one-line summary.
func (c *Client) ClassifyEmail(ctx context.Context, from, subject, snippet string) (*Classification, error) {
	content, err := c.complete(ctx, "classify", c.cfg.ClassifyModel, classifyPrompt(from, subject, snippet), true, 0.3)
	if err != nil {
		return nil, err
	}
	var out Classification
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	out.Confidence = clamp01(out.Confidence)
	return &out, nil
}

func (c *Client) LearnCategorizationPatterns(ctx context.Context, emails []LabeledEmail) ([]LearnedRule, error) {
	content, err := c.complete(ctx, "learn_patterns", c.cfg.ClassifyModel, learnPrompt(emails), true, 0.3)
	if err != nil {
		return nil, err
	}
	var out struct {
		Rules []LearnedRule `json:"rules"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return out.Rules, nil
}

func (c *Client) AnalyzeWritingStyle(ctx context.Context, samples []string) (*WritingStyle, error) {
	content, err := c.complete(ctx, "analyze_style", c.cfg.ClassifyModel, stylePrompt(samples), true, 0.3)
	if err != nil {
		return nil, err
	}
	var out WritingStyle
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode writing style: %w", err)
	}
	return &out, nil
}

// GenerateEmailDraft writes subject and body in the user's style.
func (c *Client) GenerateEmailDraft(ctx context.Context, instruction string, style model.StyleProfile, context string) (*Draft, error) {
	content, err := c.complete(ctx, "draft", c.cfg.DraftModel, draftPrompt(instruction, style, context), true, 0.7)
	if err != nil {
		return nil, err
	}
	var out Draft
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if out.Subject == "" {
		out.Subject = "New Email"
	}
	if out.Body == "" {
		out.Body = content
	}
	return &out, nil
}

// ReviseEmailDraft returns a new body only; the subject is kept by the caller.
func (c *Client) ReviseEmailDraft(ctx context.Context, original, feedback string, style model.StyleProfile) (string, error) {
	content, err := c.complete(ctx, "revise", c.cfg.DraftModel, revisePrompt(original, feedback, style), false, 0.7)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// TranscribeAudio uploads a voice note and returns its text.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	var text string
	err := c.call(ctx, "transcribe", func(ctx context.Context) error {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(audio); err != nil {
			return err
		}
		_ = w.WriteField("model", c.cfg.TranscribeModel)
		if c.cfg.TranscribeLanguage != "" {
			_ = w.WriteField("language", c.cfg.TranscribeLanguage)
		}
		if err := w.Close(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())

		var out struct {
			Text string `json:"text"`
		}
		if err := c.do(req, &out); err != nil {
			return err
		}
		text = out.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) complete(ctx context.Context, operation, modelName, prompt string, jsonMode bool, temperature float64) (string, error) {
	var content string
	err := c.call(ctx, operation, func(ctx context.Context) error {
		reqBody := chatRequest{
			Model:       modelName,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: temperature,
		}
		if jsonMode {
			reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
		}
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		var resp chatResponse
		if err := c.do(req, &resp); err != nil {
			return err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return ErrEmptyResponse
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

// call wraps fn with the breaker, a span and the provider latency metric.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := otel.ProviderSpan(ctx, provider, operation)
	defer span.End()

	start := time.Now()
	err := c.cb.Execute(ctx, fn)
	metrics.RecordProviderCall(provider, operation, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Model call failed",
			zap.String("operation", operation),
			zap.String("trace_id", trace.FromContext(ctx)),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if traceID := trace.FromContext(req.Context()); traceID != "" {
		req.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &util.StatusError{Provider: provider, Code: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
