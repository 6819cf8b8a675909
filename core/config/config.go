package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pyqhub/pyqbot/core/database"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// SheetsConfig points the paper lookup at a Google spreadsheet.
type SheetsConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id" envconfig:"SHEET_ID"`
	APIKey        string `yaml:"api_key" envconfig:"SHEETS_API_KEY"`
	ReadRange     string `yaml:"read_range" envconfig:"SHEETS_READ_RANGE"`
	// CacheTTLSeconds bounds how long lookup responses are served from cache; 0 disables caching.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" envconfig:"SHEETS_CACHE_TTL_SECONDS"`
}

// DriveConfig configures the Google Drive publish collaborator.
type DriveConfig struct {
	AccessToken string `yaml:"access_token" envconfig:"DRIVE_ACCESS_TOKEN"`
	UploadURL   string `yaml:"upload_url" envconfig:"DRIVE_UPLOAD_URL"`
}

// ApprovalConfig tunes the pending-submission queue.
type ApprovalConfig struct {
	// PendingTTLSeconds auto-rejects submissions older than this; 0 keeps them until an admin decides.
	PendingTTLSeconds int `yaml:"pending_ttl_seconds" envconfig:"APPROVAL_PENDING_TTL_SECONDS"`
}

// RateLimitConfig holds settings for per-user rate limiting.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateDocument identifies document updates for rate limit exclusions.
	UpdateDocument = "document"
)

// Config aggregates everything the bot needs at startup.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  database.Config `yaml:"database"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Drive     DriveConfig     `yaml:"drive"`
	Approval  ApprovalConfig  `yaml:"approval"`
	// CatalogPath locates the course/semester folder catalog file.
	CatalogPath string `yaml:"catalog_path" envconfig:"CATALOG_PATH"`
}

// PendingTTL returns the configured pending-submission TTL, zero when disabled.
func (c *Config) PendingTTL() time.Duration {
	if c == nil || c.Approval.PendingTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Approval.PendingTTLSeconds) * time.Second
}

// SheetsCacheTTL returns the lookup cache TTL, zero when caching is disabled.
func (c *Config) SheetsCacheTTL() time.Duration {
	if c == nil || c.Sheets.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Sheets.CacheTTLSeconds) * time.Second
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Sheets.SpreadsheetID) == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required")
	}
	if strings.TrimSpace(cfg.Sheets.ReadRange) == "" {
		cfg.Sheets.ReadRange = "Sheet1!A:D"
	}
	if strings.TrimSpace(cfg.CatalogPath) == "" {
		cfg.CatalogPath = "configs/catalog.yaml"
	}
	if cfg.Approval.PendingTTLSeconds < 0 {
		return fmt.Errorf("approval.pending_ttl_seconds must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateMessage:  {},
		UpdateDocument: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: message, document", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
