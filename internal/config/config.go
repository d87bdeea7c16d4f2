package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	ReportSchedule string // "daily" or "weekly"
	TimeZone       string

	// Azure Storage configuration, archive disabled when the account is empty
	StorageAccount   string
	StorageContainer string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Content source credentials
	InstagramAccessToken string
	InstagramUserID      string
	TwitterBearerToken   string
	YouTubeAPIKey        string
	SourceRatePerMinute  int

	// Deepfake detection API
	ClassifierURL     string
	ClassifierAPIKey  string
	ClassifierTimeout time.Duration

	// Job started at boot when topics are set
	DefaultTopics   []string
	DefaultKeywords []string

	// Poll loop tuning
	MinEngagement       int
	MaxItemsPerCycle    int
	FetchBatchSize      int
	EscalationThreshold float64
	TopicPause          time.Duration
	ItemPause           time.Duration
	CycleInterval       time.Duration
	FaultCooldown       time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Debug:          getBoolEnv("DEBUG", false),
		ReportSchedule: getEnv("REPORT_SCHEDULE", "daily"),
		TimeZone:       getEnv("TIMEZONE", "UTC"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "incidents"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		InstagramAccessToken: getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		InstagramUserID:      getEnv("INSTAGRAM_USER_ID", ""),
		TwitterBearerToken:   getEnv("TWITTER_BEARER_TOKEN", ""),
		YouTubeAPIKey:        getEnv("YOUTUBE_API_KEY", ""),
		SourceRatePerMinute:  getIntEnv("SOURCE_RATE_PER_MINUTE", 30),

		ClassifierURL:     getEnv("CLASSIFIER_URL", "http://localhost:8000/api"),
		ClassifierAPIKey:  getEnv("CLASSIFIER_API_KEY", ""),
		ClassifierTimeout: getDurationEnv("CLASSIFIER_TIMEOUT", 60*time.Second),

		DefaultTopics:   getSliceEnv("DEFAULT_TOPICS", nil),
		DefaultKeywords: getSliceEnv("DEFAULT_KEYWORDS", nil),

		MinEngagement:       getIntEnv("MIN_ENGAGEMENT", 100),
		MaxItemsPerCycle:    getIntEnv("MAX_ITEMS_PER_CYCLE", 50),
		FetchBatchSize:      getIntEnv("FETCH_BATCH_SIZE", 20),
		EscalationThreshold: getFloatEnv("ESCALATION_THRESHOLD", 0.6),
		TopicPause:          getDurationEnv("TOPIC_PAUSE", 5*time.Second),
		ItemPause:           getDurationEnv("ITEM_PAUSE", 2*time.Second),
		CycleInterval:       getDurationEnv("CYCLE_INTERVAL", 15*time.Minute),
		FaultCooldown:       getDurationEnv("FAULT_COOLDOWN", time.Minute),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReportSchedule != "daily" && c.ReportSchedule != "weekly" {
		return fmt.Errorf("REPORT_SCHEDULE must be 'daily' or 'weekly'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.ClassifierURL == "" {
		return fmt.Errorf("CLASSIFIER_URL is required")
	}

	if c.EscalationThreshold < 0 || c.EscalationThreshold > 1 {
		return fmt.Errorf("ESCALATION_THRESHOLD must be between 0 and 1, got %v", c.EscalationThreshold)
	}

	if c.MaxItemsPerCycle <= 0 || c.FetchBatchSize <= 0 {
		return fmt.Errorf("MAX_ITEMS_PER_CYCLE and FETCH_BATCH_SIZE must be positive")
	}

	durations := map[string]time.Duration{
		"CLASSIFIER_TIMEOUT": c.ClassifierTimeout,
		"TOPIC_PAUSE":        c.TopicPause,
		"ITEM_PAUSE":         c.ItemPause,
		"CYCLE_INTERVAL":     c.CycleInterval,
		"FAULT_COOLDOWN":     c.FaultCooldown,
	}
	for key, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getSliceEnv splits a comma list, dropping blanks
func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
