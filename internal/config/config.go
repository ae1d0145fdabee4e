package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"invoicesync/internal/logger"
)

// Config is the process configuration, read from the environment.
type Config struct {
	// INFast API
	ClientID     string
	ClientSecret string
	BaseURL      string
	RateLimit    float64 // Requests per second, 0 for unthrottled

	// Order synchronization
	AutoEmail          bool
	EmailCC            string
	SkipDescriptions   bool
	TriggerStatuses    []string
	LegalNoticeEnabled bool
	LegalNotice        string
	TestPaymentMethods []string

	// Local state
	StorePath   string
	SyncWorkers int

	// Webhook listener
	WebhookAddr  string
	WebhookToken string

	// Optional Google Sheets report
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	workers, err := strconv.Atoi(getEnv("SYNC_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: SYNC_WORKERS: %w", err)
	}
	rateLimit, err := strconv.ParseFloat(getEnv("INFAST_RATE_LIMIT", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: INFAST_RATE_LIMIT: %w", err)
	}

	config := &Config{
		ClientID:             getEnv("INFAST_CLIENT_ID", ""),
		ClientSecret:         getEnv("INFAST_CLIENT_SECRET", ""),
		BaseURL:              getEnv("INFAST_BASE_URL", "https://api.infast.fr/api/v2"),
		RateLimit:            rateLimit,
		AutoEmail:            getBool("INFAST_SEND_EMAIL", true),
		EmailCC:              getEnv("INFAST_EMAIL_COPY", ""),
		SkipDescriptions:     getBool("INFAST_SKIP_DESCRIPTION", true),
		TriggerStatuses:      getList("INFAST_TRIGGER_STATUSES", "wc-completed"),
		LegalNoticeEnabled:   getBool("INFAST_ENABLE_LEGAL_NOTICE", false),
		LegalNotice:          getEnv("INFAST_LEGAL_NOTICE", ""),
		TestPaymentMethods:   getList("INFAST_TEST_PAYMENT_METHODS", "test"),
		StorePath:            getEnv("STORE_PATH", "invoicesync.db"),
		SyncWorkers:          workers,
		WebhookAddr:          getEnv("WEBHOOK_ADDR", ":8080"),
		WebhookToken:         getEnv("INFAST_WEBHOOK_TOKEN", ""),
		GoogleSheetURL:       getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: getEnv("GOOGLE_SHEET_WORKSHEET", "INFast_Sync"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:        getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:            getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks values that would make every command fail. Missing API
// credentials are not an error here: commands that talk to the API report
// them when they run.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("INFAST_BASE_URL is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("INFAST_BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("INFAST_RATE_LIMIT must not be negative, got %v", c.RateLimit)
	}
	if c.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.SyncWorkers)
	}
	if len(c.TriggerStatuses) == 0 {
		return fmt.Errorf("INFAST_TRIGGER_STATUSES must list at least one status")
	}
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	return nil
}

// HasCredentials reports whether both API credentials are set.
func (c *Config) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBool accepts yes/no style flags as well as Go booleans.
func getBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case "yes", "y", "1", "true", "on":
		return true
	default:
		return false
	}
}

// getList splits a comma separated variable, dropping blanks.
func getList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
