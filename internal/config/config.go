// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AlertMode controls how often the threshold alert fires.
type AlertMode string

const (
	// AlertModeEvery fires on every evaluation above the threshold.
	AlertModeEvery AlertMode = "every"
	// AlertModeOnce fires once per upward crossing of the threshold.
	AlertModeOnce AlertMode = "once"
)

// Config holds every setting the binaries need.
type Config struct {
	Port     string
	LogLevel string

	LedgerPath string
	UploadDir  string
	GCSBucket  string
	Currency   string

	AlertThreshold decimal.Decimal
	AlertRecipient string
	AlertMode      AlertMode

	SMTPHost     string
	SMTPPort     int
	SMTPSender   string
	SMTPPassword string
	SMTPTimeout  time.Duration

	GeminiAPIKey          string
	GeminiModel           string
	ExtractTimeout        time.Duration
	ExtractMaxRetries     int
	ExtractInitialBackoff time.Duration
	ExtractMaxConcurrency int

	MirrorTimeout    time.Duration
	BigQueryProject  string
	BigQueryDataset  string
	BigQueryTable    string
	NotionToken      string
	NotionDatabaseID string

	InsightsCacheTTL time.Duration
	JobQueueSize     int
	JobWorkers       int
}

// Load reads the full configuration. The alert threshold, the alert
// recipient, the SMTP sender credentials and the Gemini API key are required;
// every missing or malformed value is reported in one ConfigurationError.
func Load() (*Config, error) {
	_ = godotenv.Load()

	r := &reader{problems: &domain.ConfigurationError{Invalid: map[string]string{}}}
	cfg := r.common()

	cfg.AlertThreshold = r.decimal("ALERT_THRESHOLD", true, decimal.Zero)
	cfg.AlertRecipient = r.str("ALERT_RECIPIENT", "", true)
	cfg.SMTPSender = r.str("SMTP_SENDER", "", true)
	cfg.SMTPPassword = r.str("SMTP_PASSWORD", "", true)
	cfg.GeminiAPIKey = r.str("GEMINI_API_KEY", "", true)

	if cfg.AlertThreshold.IsNegative() {
		r.problems.Invalid["ALERT_THRESHOLD"] = "must not be negative"
	}

	if !r.problems.Empty() {
		return nil, r.problems
	}
	return cfg, nil
}

// LoadLedger reads only what ledger-only commands need. Credentials are
// picked up when present but never required.
func LoadLedger() (*Config, error) {
	_ = godotenv.Load()

	r := &reader{problems: &domain.ConfigurationError{Invalid: map[string]string{}}}
	cfg := r.common()

	cfg.AlertThreshold = r.decimal("ALERT_THRESHOLD", false, decimal.NewFromInt(3000))
	cfg.AlertRecipient = r.str("ALERT_RECIPIENT", "", false)
	cfg.SMTPSender = r.str("SMTP_SENDER", "", false)
	cfg.SMTPPassword = r.str("SMTP_PASSWORD", "", false)
	cfg.GeminiAPIKey = r.str("GEMINI_API_KEY", "", false)

	if !r.problems.Empty() {
		return nil, r.problems
	}
	return cfg, nil
}

// SMTPConfigured reports whether alert emails can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPSender != "" && c.SMTPPassword != "" && c.AlertRecipient != ""
}

// BigQueryConfigured reports whether the BigQuery mirror is enabled.
func (c *Config) BigQueryConfigured() bool {
	return c.BigQueryProject != ""
}

// NotionConfigured reports whether the Notion mirror is enabled.
func (c *Config) NotionConfigured() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// reader collects problems while reading variables so they can be reported together.
type reader struct {
	problems *domain.ConfigurationError
}

func (r *reader) common() *Config {
	cfg := &Config{
		Port:     r.str("PORT", "8080", false),
		LogLevel: r.str("LOG_LEVEL", "info", false),

		LedgerPath: r.str("LEDGER_PATH", "database.xlsx", false),
		UploadDir:  r.str("UPLOAD_DIR", "uploads", false),
		GCSBucket:  r.str("GCS_BUCKET", "", false),
		Currency:   r.str("CURRENCY", "RM", false),

		SMTPHost:    r.str("SMTP_HOST", "smtp.gmail.com", false),
		SMTPPort:    r.integer("SMTP_PORT", 587),
		SMTPTimeout: r.duration("SMTP_TIMEOUT", 15*time.Second),

		GeminiModel:           r.str("GEMINI_MODEL", "gemini-2.5-flash", false),
		ExtractTimeout:        r.duration("EXTRACT_TIMEOUT", 60*time.Second),
		ExtractMaxRetries:     r.integer("EXTRACT_MAX_RETRIES", 2),
		ExtractInitialBackoff: r.duration("EXTRACT_INITIAL_BACKOFF", 500*time.Millisecond),
		ExtractMaxConcurrency: r.integer("EXTRACT_MAX_CONCURRENCY", 3),

		MirrorTimeout:    r.duration("MIRROR_TIMEOUT", 20*time.Second),
		BigQueryProject:  r.str("BIGQUERY_PROJECT", "", false),
		BigQueryDataset:  r.str("BIGQUERY_DATASET", "finance", false),
		BigQueryTable:    r.str("BIGQUERY_TABLE", "expenses", false),
		NotionToken:      r.str("NOTION_TOKEN", "", false),
		NotionDatabaseID: r.str("NOTION_DB_ID", "", false),

		InsightsCacheTTL: r.duration("INSIGHTS_CACHE_TTL", 10*time.Minute),
		JobQueueSize:     r.integer("JOB_QUEUE_SIZE", 100),
		JobWorkers:       r.integer("JOB_WORKERS", 3),
	}

	switch mode := AlertMode(strings.ToLower(r.str("ALERT_MODE", string(AlertModeEvery), false))); mode {
	case AlertModeEvery, AlertModeOnce:
		cfg.AlertMode = mode
	default:
		r.problems.Invalid["ALERT_MODE"] = fmt.Sprintf("%q is not one of every, once", mode)
	}

	if cfg.ExtractMaxConcurrency < 1 {
		r.problems.Invalid["EXTRACT_MAX_CONCURRENCY"] = "must be at least 1"
	}
	if cfg.JobWorkers < 1 {
		r.problems.Invalid["JOB_WORKERS"] = "must be at least 1"
	}

	return cfg
}

func (r *reader) str(key, fallback string, required bool) string {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		if required {
			r.problems.Missing = append(r.problems.Missing, key)
		}
		return fallback
	}
	return value
}

func (r *reader) integer(key string, fallback int) int {
	raw := r.str(key, "", false)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.problems.Invalid[key] = fmt.Sprintf("%q is not an integer", raw)
		return fallback
	}
	return n
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	raw := r.str(key, "", false)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.problems.Invalid[key] = fmt.Sprintf("%q is not a duration", raw)
		return fallback
	}
	return d
}

func (r *reader) decimal(key string, required bool, fallback decimal.Decimal) decimal.Decimal {
	raw := r.str(key, "", required)
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		r.problems.Invalid[key] = fmt.Sprintf("%q is not a number", raw)
		return fallback
	}
	return d
}
