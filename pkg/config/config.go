// Package config loads VoxBill configuration from a YAML file with an
// environment-variable overlay. File values come first, VOXBILL_* variables
// win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration.
type Config struct {
	DataDir  string `yaml:"data_dir" env:"VOXBILL_DATA_DIR"`
	LogDir   string `yaml:"log_dir" env:"VOXBILL_LOG_DIR"`
	LogLevel string `yaml:"log_level" env:"VOXBILL_LOG_LEVEL"`

	Gateway  GatewayConfig  `yaml:"gateway"`
	Orders   OrdersConfig   `yaml:"orders"`
	Redis    RedisConfig    `yaml:"redis"`
	Defaults BotSettings    `yaml:"defaults"`
	Quota    QuotaConfig    `yaml:"quota"`
}

// GatewayConfig configures the admin API server.
type GatewayConfig struct {
	Host   string `yaml:"host" env:"VOXBILL_GATEWAY_HOST"`
	Port   int    `yaml:"port" env:"VOXBILL_GATEWAY_PORT"`
	APIKey string `yaml:"api_key" env:"VOXBILL_API_KEY"`
}

// OrdersConfig controls pending-order retention.
type OrdersConfig struct {
	// TTL is the idle expiry for a pending order. Zero disables expiry.
	TTL time.Duration `yaml:"ttl" env:"VOXBILL_ORDER_TTL"`
	// SweepSchedule is a cron expression gating the expiry sweep.
	SweepSchedule string `yaml:"sweep_schedule" env:"VOXBILL_ORDER_SWEEP"`
	// Backend selects the store implementation: "memory" or "redis".
	Backend string `yaml:"backend" env:"VOXBILL_ORDER_BACKEND"`
}

// RedisConfig is used when the order store backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"VOXBILL_REDIS_ADDR"`
	Password string `yaml:"password" env:"VOXBILL_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"VOXBILL_REDIS_DB"`
}

// QuotaConfig bounds multi-tenant usage.
type QuotaConfig struct {
	// MaxBotsPerOwner caps bot creation per owner. Zero means unlimited.
	MaxBotsPerOwner int `yaml:"max_bots_per_owner" env:"VOXBILL_MAX_BOTS_PER_OWNER"`
}

// BotSettings holds the per-bot settings. The process-level Defaults are the
// template for new bots; each bot persists its own copy.
type BotSettings struct {
	GroqAPIKey      string `yaml:"groq_api_key" json:"groq_api_key" env:"VOXBILL_GROQ_API_KEY"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" json:"anthropic_api_key" env:"VOXBILL_ANTHROPIC_API_KEY"`

	// Extractor selects the extraction provider: "groq" (default) or "anthropic".
	Extractor string `yaml:"extractor" json:"extractor"`
	Model     string `yaml:"model" json:"model"`
	Language  string `yaml:"language" json:"language"`

	// SystemPrompt replaces the built-in extraction instruction when set;
	// KnowledgeText is business context appended to whichever instruction is
	// in effect. Empty values keep the built-ins.
	SystemPrompt  string `yaml:"system_prompt" json:"system_prompt"`
	KnowledgeText string `yaml:"knowledge_text" json:"knowledge_text"`

	CompanyName   string `yaml:"company_name" json:"company_name" env:"VOXBILL_COMPANY_NAME"`
	CompanyEmail  string `yaml:"company_email" json:"company_email" env:"VOXBILL_COMPANY_EMAIL"`
	InvoicePrefix string `yaml:"invoice_prefix" json:"invoice_prefix"`

	SMTPHost               string   `yaml:"smtp_host" json:"smtp_host" env:"VOXBILL_SMTP_HOST"`
	SMTPPort               int      `yaml:"smtp_port" json:"smtp_port" env:"VOXBILL_SMTP_PORT"`
	EmailUser              string   `yaml:"email_user" json:"email_user" env:"VOXBILL_EMAIL_USER"`
	EmailPassword          string   `yaml:"email_password" json:"email_password" env:"VOXBILL_EMAIL_PASSWORD"`
	EmailRecipients        []string `yaml:"email_recipients" json:"email_recipients"`
	ConfirmationRecipients []string `yaml:"confirmation_recipients" json:"confirmation_recipients"`

	// Email body templates with {invoiceNumber}, {clientName}, {description},
	// {amount} and {companyName} placeholders. Empty keeps the built-ins.
	InvoiceEmailTemplate      string `yaml:"invoice_email_template" json:"invoice_email_template"`
	ConfirmationEmailTemplate string `yaml:"confirmation_email_template" json:"confirmation_email_template"`

	ActivateOnReceive  *bool    `yaml:"activate_on_receive" json:"activate_on_receive,omitempty"`
	ActivateOnSend     *bool    `yaml:"activate_on_send" json:"activate_on_send,omitempty"`
	ReceiveFromNumbers []string `yaml:"receive_from_numbers" json:"receive_from_numbers"`
	SendToNumbers      []string `yaml:"send_to_numbers" json:"send_to_numbers"`
}

// ReceiveEnabled reports the incoming-audio activation flag (default true).
func (s BotSettings) ReceiveEnabled() bool {
	if s.ActivateOnReceive == nil {
		return true
	}
	return *s.ActivateOnReceive
}

// SendEnabled reports the outgoing-audio activation flag (default false).
func (s BotSettings) SendEnabled() bool {
	if s.ActivateOnSend == nil {
		return false
	}
	return *s.ActivateOnSend
}

// DefaultConfig returns the built-in defaults applied before file and env.
func DefaultConfig() *Config {
	return &Config{
		DataDir:  "data",
		LogLevel: "info",
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 3001,
		},
		Orders: OrdersConfig{
			TTL:           6 * time.Hour,
			SweepSchedule: "*/5 * * * *",
			Backend:       "memory",
		},
		Defaults: BotSettings{
			Extractor:     "groq",
			Model:         "llama-3.3-70b-versatile",
			Language:      "fr",
			CompanyName:   "Entreprise",
			InvoicePrefix: "FAC-",
			SMTPHost:      "smtp.gmail.com",
			SMTPPort:      587,
		},
	}
}

// Load reads the config file (if present), then applies the env overlay.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	return cfg, nil
}

// Validate checks startup invariants. A missing Groq key is fatal here
// because transcription cannot work without it; per-bot settings may still
// override the key later.
func (c *Config) Validate() error {
	if c.Defaults.GroqAPIKey == "" {
		return fmt.Errorf("groq_api_key is required (defaults.groq_api_key or VOXBILL_GROQ_API_KEY)")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port)
	}
	if c.Defaults.Extractor != "groq" && c.Defaults.Extractor != "anthropic" {
		return fmt.Errorf("defaults.extractor must be groq or anthropic, got %q", c.Defaults.Extractor)
	}
	return nil
}

// BotsDir returns the directory holding per-bot state.
func (c *Config) BotsDir() string { return filepath.Join(c.DataDir, "bots") }

// LedgerPath returns the SQLite invoice ledger location.
func (c *Config) LedgerPath() string { return filepath.Join(c.DataDir, "invoices.db") }

// InvoicesDir returns the directory a bot's rendered PDFs are written to.
func (c *Config) InvoicesDir(botID string) string {
	return filepath.Join(c.DataDir, "invoices", botID)
}
