package config

import (
	"fmt"
	"os"
	"time"

	"inboxwhats/internal/chat"
	"inboxwhats/internal/conversation"
	"inboxwhats/internal/gmail"
	"inboxwhats/internal/httpserver"
	"inboxwhats/internal/llm"
	"inboxwhats/internal/scheduler"
	pkgconfig "inboxwhats/pkg/config"
	"inboxwhats/pkg/otel"
)

type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	Endpoint     string `yaml:"endpoint"`
}

type TwilioConfig struct {
	AccountSID    string        `yaml:"account_sid"`
	AuthToken     string        `yaml:"auth_token"`
	From          string        `yaml:"from"`
	BaseURL       string        `yaml:"base_url"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	ClassifyModel      string        `yaml:"classify_model"`
	DraftModel         string        `yaml:"draft_model"`
	TranscribeModel    string        `yaml:"transcribe_model"`
	TranscribeLanguage string        `yaml:"transcribe_language"`
	Timeout            time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	VerifyToken   string  `yaml:"verify_token"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type PollerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxResults int64         `yaml:"max_results"`
	LeaseTTL   time.Duration `yaml:"lease_ttl"`
}

type DigestConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type ConversationConfig struct {
	// Store is "memory" or "redis".
	Store          string        `yaml:"store"`
	TTL            time.Duration `yaml:"ttl"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	LinkBaseURL    string        `yaml:"link_base_url"`
	LinkTTL        time.Duration `yaml:"link_ttl"`
}

type SecurityConfig struct {
	LinkSecret string `yaml:"link_secret"`
	SealerKey  string `yaml:"sealer_key"`
}

type Config struct {
	LogLevel     string                 `yaml:"log_level"`
	Server       pkgconfig.ServerConfig `yaml:"server"`
	DB           pkgconfig.DBConfig     `yaml:"db"`
	MQ           pkgconfig.MQConfig     `yaml:"mq"`
	Redis        pkgconfig.RedisConfig  `yaml:"redis"`
	Otel         pkgconfig.OtelConfig   `yaml:"otel"`
	Gmail        GmailConfig            `yaml:"gmail"`
	Twilio       TwilioConfig           `yaml:"twilio"`
	LLM          LLMConfig              `yaml:"llm"`
	Webhook      WebhookConfig          `yaml:"webhook"`
	Poller       PollerConfig           `yaml:"poller"`
	Digest       DigestConfig           `yaml:"digest"`
	Conversation ConversationConfig     `yaml:"conversation"`
	Security     SecurityConfig         `yaml:"security"`
}

// Load reads config/<CONFIG_ENV>.yaml over config/base.yaml, then applies
// environment overrides.
func Load() (*Config, error) {
	env := pkgconfig.GetConfigEnv()
	configDir := pkgconfig.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if err := pkgconfig.LoadConfig(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideOtelFromEnv(&cfg.Otel)
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LINK_SECRET"); v != "" {
		cfg.Security.LinkSecret = v
	}
	if v := os.Getenv("SEALER_KEY"); v != "" {
		cfg.Security.SealerKey = v
	}
	if v := os.Getenv("WEBHOOK_VERIFY_TOKEN"); v != "" {
		cfg.Webhook.VerifyToken = v
	}
	if v := os.Getenv("CONVERSATION_STORE"); v != "" {
		cfg.Conversation.Store = v
	}
}

func (c *Config) Validate() error {
	switch c.Conversation.Store {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("conversation.store must be memory or redis, got %q", c.Conversation.Store)
	}
	if c.Security.LinkSecret == "" {
		return fmt.Errorf("security.link_secret is required")
	}
	if c.Security.SealerKey == "" {
		return fmt.Errorf("security.sealer_key is required")
	}
	return nil
}

func (c *Config) GmailClient() gmail.Config {
	return gmail.Config{
		ClientID:     c.Gmail.ClientID,
		ClientSecret: c.Gmail.ClientSecret,
		RedirectURL:  c.Gmail.RedirectURL,
		Endpoint:     c.Gmail.Endpoint,
	}
}

func (c *Config) ChatClient() chat.Config {
	return chat.Config{
		AccountSID:    c.Twilio.AccountSID,
		AuthToken:     c.Twilio.AuthToken,
		From:          c.Twilio.From,
		BaseURL:       c.Twilio.BaseURL,
		RatePerSecond: c.Twilio.RatePerSecond,
		Burst:         c.Twilio.Burst,
		Timeout:       c.Twilio.Timeout,
	}
}

func (c *Config) LLMClient() llm.Config {
	return llm.Config{
		BaseURL:            c.LLM.BaseURL,
		APIKey:             c.LLM.APIKey,
		ClassifyModel:      c.LLM.ClassifyModel,
		DraftModel:         c.LLM.DraftModel,
		TranscribeModel:    c.LLM.TranscribeModel,
		TranscribeLanguage: c.LLM.TranscribeLanguage,
		Timeout:            c.LLM.Timeout,
	}
}

func (c *Config) Engine() conversation.Config {
	return conversation.Config{
		LinkBaseURL: c.Conversation.LinkBaseURL,
		LinkSecret:  c.Security.LinkSecret,
		LinkTTL:     c.Conversation.LinkTTL,
	}
}

func (c *Config) HTTP() httpserver.Config {
	return httpserver.Config{
		VerifyToken:   c.Webhook.VerifyToken,
		RatePerSecond: c.Webhook.RatePerSecond,
		Burst:         c.Webhook.Burst,
	}
}

func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		PollInterval:   c.Poller.Interval,
		DigestInterval: c.Digest.Interval,
	}
}

func (c *Config) Tracing(serviceName, version string) otel.Config {
	return otel.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       c.Otel.Endpoint,
		Enabled:        c.Otel.Enabled,
		SampleRatio:    c.Otel.SampleRatio,
	}
}
