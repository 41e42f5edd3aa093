// Package config handles application configuration.
//
// Go Pattern: Configuration via environment variables with sensible defaults.
// In Go, we typically use structs to hold configuration, and a function to
// load values from environment variables.
//
// Load order (later wins): built-in defaults, an optional YAML file named by
// CONFIG_FILE, then environment variables (a .env file in the working
// directory is loaded into the environment first if present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"` // "debug", "release", or "test"

	// Database settings. Empty means job records are kept in memory.
	DatabaseURL    string `yaml:"database_url"`
	MigrationsPath string `yaml:"migrations_path"`

	// Storage
	MediaRoot string `yaml:"media_root"` // jobs/<id>/... lives under here

	// Per-job locks. Empty means in-process locks.
	RedisURL string `yaml:"redis_url"`

	// Worker settings
	WorkerCount  int `yaml:"worker_count"`   // Number of background worker goroutines
	JobQueueSize int `yaml:"job_queue_size"` // Size of the in-memory job queue buffer

	// Rendering and uploads
	PreviewZoom float64 `yaml:"preview_zoom"`
	MaxUploadMB int     `yaml:"max_upload_mb"`

	// Rate limiting
	RateLimitPerHour int `yaml:"rate_limit_per_hour"` // Requests per hour per client IP

	// CORS
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Job event notifications. Empty URL disables them.
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"` // HMAC-SHA256 signing key

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "console"
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:             "8080",
		GinMode:          "debug",
		MigrationsPath:   "migrations",
		MediaRoot:        "media",
		WorkerCount:      3,
		JobQueueSize:     100,
		PreviewZoom:      2.0,
		MaxUploadMB:      50,
		RateLimitPerHour: 600,
		AllowedOrigins:   []string{"http://localhost:5173"}, // Vite dev server default
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load reads configuration from the optional YAML file and environment
// variables.
//
// Go Pattern: Functions that can fail return (value, error). This is Go's
// alternative to exceptions — the caller MUST handle the error.
func Load() (*Config, error) {
	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays values from a YAML file.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables.
func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.MigrationsPath = getEnv("MIGRATIONS_PATH", c.MigrationsPath)
	c.MediaRoot = getEnv("MEDIA_ROOT", c.MediaRoot)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.WorkerCount = getEnvInt("WORKER_COUNT", c.WorkerCount)
	c.JobQueueSize = getEnvInt("JOB_QUEUE_SIZE", c.JobQueueSize)
	c.PreviewZoom = getEnvFloat("PREVIEW_ZOOM", c.PreviewZoom)
	c.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", c.MaxUploadMB)
	c.RateLimitPerHour = getEnvInt("RATE_LIMIT_PER_HOUR", c.RateLimitPerHour)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.WebhookSecret = getEnv("WEBHOOK_SECRET", c.WebhookSecret)

	// CORS_ORIGIN accepts a comma-separated list
	if origins := getEnv("CORS_ORIGIN", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if c.MediaRoot == "" {
		return errors.New("MEDIA_ROOT must not be empty")
	}
	if c.PreviewZoom <= 0 || c.PreviewZoom > 8 {
		return fmt.Errorf("PREVIEW_ZOOM must be in (0, 8], got %g", c.PreviewZoom)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must be an http(s) URL, got %q", c.WebhookURL)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode)
	}
	return nil
}

// MaxUploadBytes is the request body cap for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// getEnv reads an environment variable with a fallback default.
// Go Pattern: Small helper functions are idiomatic. Go favors simple,
// composable functions over complex frameworks.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvInt reads an integer environment variable with a fallback.
func getEnvInt(key string, fallback int) int {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return fallback
	}
	return val
}

// getEnvFloat reads a float environment variable with a fallback.
func getEnvFloat(key string, fallback float64) float64 {
	str := getEnv(key, "")
	if str == "" {
		return fallback
	}
	val, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fallback
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
