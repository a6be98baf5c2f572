package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"velocity-scout/internal/models"
)

type Config struct {
	DatabaseFile string           `yaml:"database_file" env:"VELOCITY_DB_FILE"`
	YouTube      YouTubeConfig    `yaml:"youtube"`
	Search       SearchConfig     `yaml:"search"`
	Sync         SyncConfig       `yaml:"sync"`
	Email        EmailConfig      `yaml:"email"`
	Monitoring   MonitoringConfig `yaml:"monitoring"`
	Schedule     string           `yaml:"schedule"`
	LogLevel     string           `yaml:"log_level"`
}

type YouTubeConfig struct {
	APIKey string `yaml:"api_key" env:"YOUTUBE_API_KEY"`
	// APIKeyAlias picks a key stored in the database instead of APIKey.
	APIKeyAlias string `yaml:"api_key_alias"`
	// RequestsPerSecond paces calls to the Data API. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type SearchConfig struct {
	Keywords           []string `yaml:"keywords"`
	Order              string   `yaml:"order"`
	MinViews           int64    `yaml:"min_views"`
	MinDurationSeconds int      `yaml:"min_duration_seconds"`
	MaxDurationSeconds int      `yaml:"max_duration_seconds"`
	MaxSubscribers     *int64   `yaml:"max_subscribers"`
	TargetCount        int      `yaml:"target_count"`
}

type SyncConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_CREDENTIALS_FILE"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
}

// Enabled reports whether a digest should be mailed after scheduled runs.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.ToEmail != ""
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port"`
}

// Load reads .env, then CONFIG_FILE (default config.yaml), then applies
// environment fallbacks and defaults. A missing config file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(configFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if c.DatabaseFile == "" {
		c.DatabaseFile = os.Getenv("VELOCITY_DB_FILE")
	}
	if c.YouTube.APIKey == "" {
		c.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if c.Sync.CredentialsFile == "" {
		c.Sync.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	}
	if c.Email.Username == "" {
		c.Email.Username = os.Getenv("EMAIL_USERNAME")
	}
	if c.Email.Password == "" {
		c.Email.Password = os.Getenv("EMAIL_PASSWORD")
	}
}

func (c *Config) applyDefaults() {
	if c.DatabaseFile == "" {
		c.DatabaseFile = DefaultDatabaseFile()
	}
	if c.Search.Order == "" {
		c.Search.Order = models.OrderViewCount
	}
	if c.Search.MinViews == 0 {
		c.Search.MinViews = 100000
	}
	if c.Search.MinDurationSeconds == 0 {
		c.Search.MinDurationSeconds = 60
	}
	if c.Search.MaxSubscribers == nil {
		unlimited := int64(-1)
		c.Search.MaxSubscribers = &unlimited
	}
	if c.Search.TargetCount == 0 {
		c.Search.TargetCount = 10
	}
	if c.Schedule == "" {
		c.Schedule = "0 0 9 * * *" // Daily at 9 AM
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8080
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if !models.ValidOrder(c.Search.Order) {
		return fmt.Errorf("search order %q is not one of relevance, date, viewCount", c.Search.Order)
	}
	if c.Search.TargetCount < 1 {
		return fmt.Errorf("search.target_count must be positive, got %d", c.Search.TargetCount)
	}
	if c.Search.MinViews < 0 {
		return fmt.Errorf("search.min_views must not be negative, got %d", c.Search.MinViews)
	}
	if c.YouTube.RequestsPerSecond < 0 {
		return fmt.Errorf("youtube.requests_per_second must not be negative")
	}
	if c.Email.Enabled() && (c.Email.Username == "" || c.Email.Password == "") {
		return fmt.Errorf("Email credentials are required when email.smtp_server is set (set EMAIL_USERNAME and EMAIL_PASSWORD)")
	}
	return nil
}

// SearchDefaults returns the configured filters as search parameters for keyword.
func (c *Config) SearchDefaults(keyword string) models.SearchParams {
	return models.SearchParams{
		APIKey:             c.YouTube.APIKey,
		Keyword:            keyword,
		Order:              c.Search.Order,
		MaxSubscribers:     *c.Search.MaxSubscribers,
		MinViews:           c.Search.MinViews,
		MinDurationSeconds: c.Search.MinDurationSeconds,
		MaxDurationSeconds: c.Search.MaxDurationSeconds,
		TargetCount:        c.Search.TargetCount,
	}
}

// DefaultDatabaseFile keeps the database under ~/Documents, falling back to
// the working directory when no home directory is available.
func DefaultDatabaseFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "youtube_analysis.db"
	}
	return filepath.Join(home, "Documents", ".youtube_analysis.db")
}
