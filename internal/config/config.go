package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for papersync.
type Config struct {
	// Remote document store.
	ServerURL string `env:"SERVER_URL"`
	Email     string `env:"EMAIL"`
	Password  string `env:"PASSWORD"`

	// Directory mirroring the user's document library.
	WatchDir string `env:"WATCH_DIR"`

	// Device name this agent identifies as. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Auto-upload behaviour.
	AutoUploadEnabled bool `env:"AUTO_UPLOAD_ENABLED" envDefault:"true"`
	// Extension allow-list, comma-separated, dot included.
	FileTypes []string `env:"AUTO_UPLOAD_FILE_TYPES" envDefault:".pdf"`
	// Additional ignore patterns, comma-separated regular expressions
	// matched against library-relative paths.
	IgnorePatterns []string      `env:"AUTO_UPLOAD_IGNORE_PATTERNS" envSeparator:","`
	SettleDelay    time.Duration `env:"AUTO_UPLOAD_DELAY" envDefault:"300ms"`
	MaxRetries     int           `env:"AUTO_UPLOAD_MAX_RETRIES" envDefault:"3"`
	RetryDelay     time.Duration `env:"AUTO_UPLOAD_RETRY_DELAY" envDefault:"1s"`
	// Maximum concurrent uploads across distinct paths.
	UploadConcurrency int `env:"AUTO_UPLOAD_CONCURRENCY" envDefault:"4"`

	// Correlation windows.
	MoveWindow        time.Duration `env:"MOVE_WINDOW" envDefault:"2s"`
	FolderBatchWindow time.Duration `env:"FOLDER_BATCH_WINDOW" envDefault:"10s"`

	// Fingerprint strategy for delete/create correlation: "content"
	// (BLAKE3 hash) or "size" (size plus modification time).
	FingerprintStrategy string `env:"FINGERPRINT_STRATEGY" envDefault:"content"`

	// Thumbnails.
	ThumbnailsEnabled bool `env:"THUMBNAILS_ENABLED" envDefault:"true"`
	ThumbnailMaxSize  int  `env:"THUMBNAILS_MAX_SIZE" envDefault:"512"`
	ThumbnailQuality  int  `env:"THUMBNAILS_QUALITY" envDefault:"80"`

	// File processing.
	ExtractText      bool   `env:"FILE_PROCESSING_EXTRACT_TEXT" envDefault:"true"`
	GenerateKeywords bool   `env:"FILE_PROCESSING_GENERATE_KEYWORDS" envDefault:"true"`
	GenerateTags     bool   `env:"FILE_PROCESSING_GENERATE_TAGS" envDefault:"true"`
	MaxKeywords      int    `env:"FILE_PROCESSING_MAX_KEYWORDS" envDefault:"5"`
	MaxTags          int    `env:"FILE_PROCESSING_MAX_TAGS" envDefault:"5"`
	OCRLanguages     string `env:"OCR_LANGUAGES" envDefault:"eng+ron"`
	// Path to the YAML tag vocabulary. Empty disables tag suggestions.
	TagRulesPath           string  `env:"TAG_RULES_PATH"`
	TagConfidenceThreshold float64 `env:"TAG_CONFIDENCE_THRESHOLD" envDefault:"0.5"`

	// Local state database.
	DBConnectionTimeout time.Duration `env:"DATABASE_CONNECTION_TIMEOUT" envDefault:"5s"`
	DBMaxRetries        int           `env:"DATABASE_MAX_RETRIES" envDefault:"3"`
	DBRetryDelay        time.Duration `env:"DATABASE_RETRY_DELAY" envDefault:"1s"`

	// Notification channel.
	ReconnectAttempts int           `env:"CHANNEL_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"CHANNEL_RECONNECT_DELAY" envDefault:"1s"`
	ChannelTimeout    time.Duration `env:"CHANNEL_TIMEOUT" envDefault:"30s"`

	// UI notifications.
	ShowNotifications    bool          `env:"UI_SHOW_NOTIFICATIONS" envDefault:"true"`
	NotificationDuration time.Duration `env:"UI_NOTIFICATION_DURATION" envDefault:"5s"`
	RefreshDelay         time.Duration `env:"UI_REFRESH_DELAY" envDefault:"500ms"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "papersync"
		}

		cfg.DeviceName = hostname
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve WatchDir to an absolute path at startup. Downstream code
	// computes library-relative paths against it and the containment
	// checks rely on string prefix comparison, which only works reliably
	// with absolute paths.
	absDir, err := filepath.Abs(cfg.WatchDir)
	if err != nil {
		return nil, fmt.Errorf("resolving watch dir to absolute path: %w", err)
	}

	cfg.WatchDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}

	if c.WatchDir == "" {
		return fmt.Errorf("WATCH_DIR is required")
	}

	if c.Email == "" {
		return fmt.Errorf("EMAIL is required")
	}

	if c.Password == "" {
		return fmt.Errorf("PASSWORD is required")
	}

	switch c.FingerprintStrategy {
	case "content", "size":
	default:
		return fmt.Errorf("FINGERPRINT_STRATEGY must be \"content\" or \"size\", got %q", c.FingerprintStrategy)
	}

	if c.ThumbnailQuality < 1 || c.ThumbnailQuality > 100 {
		return fmt.Errorf("THUMBNAILS_QUALITY must be between 1 and 100, got %d", c.ThumbnailQuality)
	}

	if c.TagConfidenceThreshold < 0 || c.TagConfidenceThreshold > 1 {
		return fmt.Errorf("TAG_CONFIDENCE_THRESHOLD must be between 0 and 1, got %g", c.TagConfidenceThreshold)
	}

	if c.MoveWindow <= 0 || c.FolderBatchWindow <= 0 {
		return fmt.Errorf("correlation windows must be positive")
	}

	// The channel derives its heartbeat cadence from this value, so zero
	// is as fatal as negative.
	if c.ChannelTimeout <= 0 {
		return fmt.Errorf("CHANNEL_TIMEOUT must be positive, got %s", c.ChannelTimeout)
	}

	if c.UploadConcurrency < 1 {
		return fmt.Errorf("AUTO_UPLOAD_CONCURRENCY must be at least 1, got %d", c.UploadConcurrency)
	}

	for i, ext := range c.FileTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("AUTO_UPLOAD_FILE_TYPES entry %d must start with a dot: %q", i+1, ext)
		}

		c.FileTypes[i] = ext
	}

	return nil
}

// CompileIgnorePatterns compiles the configured ignore patterns, failing
// on the first invalid regular expression.
func (c *Config) CompileIgnorePatterns() ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(c.IgnorePatterns))

	for _, raw := range c.IgnorePatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compiling ignore pattern %q: %w", raw, err)
		}

		patterns = append(patterns, re)
	}

	return patterns, nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
