package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"citystories/pkg/models"
)

// Auth modes
const (
	AuthModeSession = "session"
	AuthModeLogin   = "login"
)

// Placeholder values written by `config init` that must never reach the remote
const (
	PlaceholderSessionID = "YOUR_SESSION_ID"
	PlaceholderPassword  = "YOUR_PASSWORD"
)

// Config holds all configuration options for an ingestion run
type Config struct {
	// Tracked accounts, processed in this order
	Accounts []models.TrackedAccount `yaml:"accounts" toml:"accounts" json:"accounts"`

	// Instagram credentials and request identity
	Instagram InstagramConfig `yaml:"instagram" toml:"instagram" json:"instagram"`

	// Delays between remote calls
	Pacing PacingConfig `yaml:"pacing" toml:"pacing" json:"pacing"`

	// Per-account ingestion settings
	Ingest IngestConfig `yaml:"ingest" toml:"ingest" json:"ingest"`

	// Asset download settings
	Download DownloadConfig `yaml:"download" toml:"download" json:"download"`

	// Where assets and the manifest go
	Output OutputConfig `yaml:"output" toml:"output" json:"output"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" toml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	AuthMode  string `yaml:"auth_mode" toml:"auth_mode" json:"auth_mode"`
	SessionID string `yaml:"session_id" toml:"session_id" json:"session_id"`
	CSRFToken string `yaml:"csrf_token" toml:"csrf_token" json:"csrf_token"`
	Username  string `yaml:"username" toml:"username" json:"username"`
	Password  string `yaml:"password" toml:"password" json:"password"`
	UserAgent string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	AppID     string `yaml:"app_id" toml:"app_id" json:"app_id"`
	BaseURL   string `yaml:"base_url" toml:"base_url" json:"base_url"`
	// Timeout for profile and login requests
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout" json:"request_timeout"`
}

// PacingConfig holds the delay classes applied between remote calls
type PacingConfig struct {
	AssetDelay        time.Duration `yaml:"asset_delay" toml:"asset_delay" json:"asset_delay"`
	AccountDelay      time.Duration `yaml:"account_delay" toml:"account_delay" json:"account_delay"`
	MetadataDelay     time.Duration `yaml:"metadata_delay" toml:"metadata_delay" json:"metadata_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
}

// IngestConfig holds per-account ingestion settings
type IngestConfig struct {
	PostsPerAccount  int `yaml:"posts_per_account" toml:"posts_per_account" json:"posts_per_account"`
	MetadataAttempts int `yaml:"metadata_attempts" toml:"metadata_attempts" json:"metadata_attempts"`
	// Stop contacting the remote after this many consecutive auth failures (0 disables)
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" toml:"max_consecutive_failures" json:"max_consecutive_failures"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" toml:"concurrent_downloads" json:"concurrent_downloads"`
	PrimaryTimeout      time.Duration `yaml:"primary_timeout" toml:"primary_timeout" json:"primary_timeout"`
	ThumbnailTimeout    time.Duration `yaml:"thumbnail_timeout" toml:"thumbnail_timeout" json:"thumbnail_timeout"`
	MaxFileSize         int64         `yaml:"max_file_size" toml:"max_file_size" json:"max_file_size"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	RootDirectory string `yaml:"root_directory" toml:"root_directory" json:"root_directory"`
	ManifestFile  string `yaml:"manifest_file" toml:"manifest_file" json:"manifest_file"`
	// Prepended to every path written into the manifest
	PathPrefix string `yaml:"path_prefix" toml:"path_prefix" json:"path_prefix"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" toml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" toml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
	File   string `yaml:"file" toml:"file" json:"file"`
}

// DefaultAccounts are the three tracked cities
func DefaultAccounts() []models.TrackedAccount {
	return []models.TrackedAccount{
		{Key: "istanbul", RegionID: "TR-34", DisplayName: "İstanbul", Handle: "istanbulanlik"},
		{Key: "ankara", RegionID: "TR-06", DisplayName: "Ankara", Handle: "ankaraanlikcom"},
		{Key: "trabzon", RegionID: "TR-61", DisplayName: "Trabzon", Handle: "trabzonanliktr"},
	}
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Accounts: DefaultAccounts(),
		Instagram: InstagramConfig{
			AuthMode:       AuthModeSession,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			AppID:          "936619743392459",
			BaseURL:        "https://www.instagram.com",
			RequestTimeout: 15 * time.Second,
		},
		Pacing: PacingConfig{
			AssetDelay:        time.Second,
			AccountDelay:      3 * time.Second,
			MetadataDelay:     time.Second,
			RequestsPerMinute: 0,
		},
		Ingest: IngestConfig{
			PostsPerAccount:        6,
			MetadataAttempts:       2,
			MaxConsecutiveFailures: 0,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 1,
			PrimaryTimeout:      60 * time.Second,
			ThumbnailTimeout:    20 * time.Second,
			MaxFileSize:         0, // 0 means no limit
		},
		Output: OutputConfig{
			RootDirectory: "./stories",
			ManifestFile:  "manifest.json",
			PathPrefix:    "",
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
	}
}

// ManifestPath returns the canonical manifest location
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Output.RootDirectory, c.Output.ManifestFile)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	// Credentials, with the legacy INSTAGRAM_* names as fallbacks
	if v := firstEnv("CITYSTORIES_SESSION_ID", "INSTAGRAM_SESSION_ID"); v != "" {
		c.Instagram.SessionID = v
	}
	if v := firstEnv("CITYSTORIES_CSRF_TOKEN", "INSTAGRAM_CSRF_TOKEN"); v != "" {
		c.Instagram.CSRFToken = v
	}
	if v := firstEnv("CITYSTORIES_USERNAME", "INSTAGRAM_USER"); v != "" {
		c.Instagram.Username = v
	}
	if v := firstEnv("CITYSTORIES_PASSWORD", "INSTAGRAM_PASS"); v != "" {
		c.Instagram.Password = v
	}
	if v := os.Getenv("CITYSTORIES_AUTH_MODE"); v != "" {
		c.Instagram.AuthMode = strings.ToLower(v)
	}
	if v := os.Getenv("CITYSTORIES_USER_AGENT"); v != "" {
		c.Instagram.UserAgent = v
	}

	if v := os.Getenv("CITYSTORIES_OUTPUT_DIR"); v != "" {
		c.Output.RootDirectory = v
	}
	if v := os.Getenv("CITYSTORIES_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("CITYSTORIES_CONCURRENT_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CITYSTORIES_CONCURRENT_DOWNLOADS: %w", err))
		} else {
			c.Download.ConcurrentDownloads = n
		}
	}
	if v := os.Getenv("CITYSTORIES_POSTS_PER_ACCOUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CITYSTORIES_POSTS_PER_ACCOUNT: %w", err))
		} else {
			c.Ingest.PostsPerAccount = n
		}
	}

	if v := os.Getenv("CITYSTORIES_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}

	return errors.Join(errs...)
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// LoadFromFile loads configuration from a YAML or TOML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"citystories.yaml",
		"citystories.yml",
		"citystories.toml",
		filepath.Join(home, ".config", "citystories", "config.yaml"),
		filepath.Join(home, ".config", "citystories", "config.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Accounts
	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("at least one account is required"))
	}
	seenKeys := make(map[string]bool)
	seenHandles := make(map[string]bool)
	for i, acc := range c.Accounts {
		if acc.Key == "" {
			errs = append(errs, fmt.Errorf("account %d: key is required", i))
		} else if seenKeys[acc.Key] {
			errs = append(errs, fmt.Errorf("account %q: duplicate key", acc.Key))
		}
		seenKeys[acc.Key] = true

		if !validHandle(acc.Handle) {
			errs = append(errs, fmt.Errorf("account %q: invalid handle %q", acc.Key, acc.Handle))
		} else if seenHandles[strings.ToLower(acc.Handle)] {
			errs = append(errs, fmt.Errorf("account %q: handle %q used twice", acc.Key, acc.Handle))
		}
		seenHandles[strings.ToLower(acc.Handle)] = true
	}

	// Credentials
	switch c.Instagram.AuthMode {
	case AuthModeSession:
		if c.Instagram.SessionID == "" || c.Instagram.SessionID == PlaceholderSessionID {
			errs = append(errs, errors.New("Instagram session ID is required"))
		}
	case AuthModeLogin:
		if c.Instagram.Username == "" {
			errs = append(errs, errors.New("Instagram username is required for login auth"))
		}
		if c.Instagram.Password == "" || c.Instagram.Password == PlaceholderPassword {
			errs = append(errs, errors.New("Instagram password is required for login auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Instagram.AuthMode))
	}
	if c.Instagram.AppID == "" {
		errs = append(errs, errors.New("Instagram app ID is required"))
	}
	if c.Instagram.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	// Pacing
	if c.Pacing.AssetDelay < 0 || c.Pacing.AccountDelay < 0 || c.Pacing.MetadataDelay < 0 {
		errs = append(errs, errors.New("pacing delays cannot be negative"))
	}
	if c.Pacing.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	// Ingest
	if c.Ingest.PostsPerAccount <= 0 || c.Ingest.PostsPerAccount > 12 {
		errs = append(errs, errors.New("posts per account must be between 1 and 12"))
	}
	if c.Ingest.MetadataAttempts <= 0 {
		errs = append(errs, errors.New("metadata attempts must be positive"))
	}
	if c.Ingest.MaxConsecutiveFailures < 0 {
		errs = append(errs, errors.New("max consecutive failures cannot be negative"))
	}

	// Download
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 3 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 3"))
	}
	if c.Download.PrimaryTimeout <= 0 || c.Download.ThumbnailTimeout <= 0 {
		errs = append(errs, errors.New("download timeouts must be positive"))
	}

	// Output
	if c.Output.RootDirectory == "" {
		errs = append(errs, errors.New("output root directory is required"))
	}
	if c.Output.ManifestFile == "" || filepath.Base(c.Output.ManifestFile) != c.Output.ManifestFile {
		errs = append(errs, errors.New("manifest file must be a plain file name"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if f := strings.ToLower(c.Logging.Format); f != "console" && f != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validHandle applies Instagram's username rules; it also keeps handles
// safe to use as directory names.
func validHandle(handle string) bool {
	if handle == "" || len(handle) > 30 {
		return false
	}
	if strings.Trim(handle, ".") == "" {
		return false
	}
	for _, char := range handle {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}
	return true
}

// Save saves the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Accounts = append([]models.TrackedAccount(nil), c.Accounts...)
	cp.Instagram.SessionID = mask(c.Instagram.SessionID)
	cp.Instagram.CSRFToken = mask(c.Instagram.CSRFToken)
	cp.Instagram.Password = mask(c.Instagram.Password)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if sessionID, ok := flags["session-id"].(string); ok && sessionID != "" {
		c.Instagram.SessionID = sessionID
	}
	if csrfToken, ok := flags["csrf-token"].(string); ok && csrfToken != "" {
		c.Instagram.CSRFToken = csrfToken
	}
	if mode, ok := flags["auth-mode"].(string); ok && mode != "" {
		c.Instagram.AuthMode = strings.ToLower(mode)
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.RootDirectory = outputDir
	}
	if concurrent, ok := flags["concurrent-downloads"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if posts, ok := flags["posts-per-account"].(int); ok && posts > 0 {
		c.Ingest.PostsPerAccount = posts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if enabled, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = enabled
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	cfg, err := LoadUnvalidated(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated merges all sources without validating, so callers can
// fill in credentials from a credential store first
func LoadUnvalidated(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".citystories.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	return config, nil
}
