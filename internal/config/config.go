// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	ServerPort   string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"downloads.db"`

	// Download storage
	DownloadDir         string `env:"DOWNLOAD_DIR" envDefault:"/downloads"`
	CustomDir           string `env:"CUSTOM_DOWNLOAD_DIR"`
	ResourceStoragePath string `env:"RESOURCE_STORAGE_PATH" envDefault:"/var/lib/ckan/resources"`

	// Versioned record store
	DatastoreURL    string `env:"DATASTORE_URL,required"`
	DatastoreAPIKey string `env:"DATASTORE_API_KEY"`

	// Site details used for links and archive metadata
	SiteURL        string `env:"SITE_URL" envDefault:"http://localhost:8080"`
	SiteTitle      string `env:"SITE_TITLE" envDefault:"Data Portal"`
	SiteLogo       string `env:"SITE_LOGO"`
	LocaleDefault  string `env:"LOCALE_DEFAULT" envDefault:"en"`
	RecordViewPath string `env:"RECORD_VIEW_PATH" envDefault:"/object/{uuid}"`

	// DarwinCore archives
	DwCSchemaCache    string   `env:"DWC_SCHEMA_CACHE"`
	DwCCoreExtension  string   `env:"DWC_CORE_EXTENSION"`
	DwCExtensions     []string `env:"DWC_EXTENSIONS" envSeparator:","`
	DwCOrgName        string   `env:"DWC_ORG_NAME"`
	DwCOrgEmail       string   `env:"DWC_ORG_EMAIL"`
	DwCDefaultLicense string   `env:"DWC_DEFAULT_LICENSE" envDefault:"null"`

	// Email notifications
	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"25"`
	SMTPFrom string `env:"SMTP_FROM"`

	// Job execution
	JobTimeout    time.Duration `env:"JOB_TIMEOUT" envDefault:"24h"`
	QueueSize     int           `env:"QUEUE_SIZE" envDefault:"100"`
	RetentionDays int           `env:"RETENTION_DAYS" envDefault:"0"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatastoreURL == "" {
		return fmt.Errorf("DATASTORE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.DatastoreURL); err != nil {
		return fmt.Errorf("DATASTORE_URL is not a valid URL: %w", err)
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("DOWNLOAD_DIR cannot be empty")
	}

	cleanPath := filepath.Clean(c.DownloadDir)
	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("DOWNLOAD_DIR must be an absolute path, got: %s", c.DownloadDir)
	}

	// Check if path exists and is a directory (only if it exists)
	if info, err := os.Stat(cleanPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("DOWNLOAD_DIR must be a directory, got file: %s", cleanPath)
		}
	}
	c.DownloadDir = cleanPath

	if c.CustomDir == "" {
		c.CustomDir = filepath.Join(c.DownloadDir, "custom")
	} else if !filepath.IsAbs(c.CustomDir) {
		return fmt.Errorf("CUSTOM_DOWNLOAD_DIR must be an absolute path, got: %s", c.CustomDir)
	}
	c.CustomDir = filepath.Clean(c.CustomDir)

	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got: %d", c.QueueSize)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive, got: %s", c.JobTimeout)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS cannot be negative, got: %d", c.RetentionDays)
	}

	c.SiteURL = strings.TrimRight(c.SiteURL, "/")

	return nil
}

// CoreDir returns the root directory that holds the cached core files
func (c *Config) CoreDir() string {
	return filepath.Join(c.DownloadDir, "core")
}
