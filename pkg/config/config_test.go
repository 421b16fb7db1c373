package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if len(config.Accounts) != 3 {
		t.Fatalf("Expected 3 default accounts, got %d", len(config.Accounts))
	}
	if config.Accounts[0].Key != "istanbul" || config.Accounts[0].Handle != "istanbulanlik" {
		t.Errorf("Unexpected first account: %+v", config.Accounts[0])
	}
	if config.Ingest.PostsPerAccount != 6 {
		t.Errorf("Expected default posts per account to be 6, got %d", config.Ingest.PostsPerAccount)
	}
	if config.Download.ConcurrentDownloads != 1 {
		t.Errorf("Expected default concurrent downloads to be 1, got %d", config.Download.ConcurrentDownloads)
	}
	if config.Pacing.AccountDelay != 3*time.Second {
		t.Errorf("Expected default account delay 3s, got %v", config.Pacing.AccountDelay)
	}
	if config.ManifestPath() != filepath.Join("./stories", "manifest.json") {
		t.Errorf("Unexpected manifest path %s", config.ManifestPath())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CITYSTORIES_SESSION_ID", "test-session-id")
	t.Setenv("CITYSTORIES_CSRF_TOKEN", "test-csrf-token")
	t.Setenv("CITYSTORIES_OUTPUT_DIR", "/tmp/test-stories")
	t.Setenv("CITYSTORIES_CONCURRENT_DOWNLOADS", "2")
	t.Setenv("CITYSTORIES_POSTS_PER_ACCOUNT", "4")
	t.Setenv("CITYSTORIES_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "test-session-id", config.Instagram.SessionID)
	assert.Equal(t, "test-csrf-token", config.Instagram.CSRFToken)
	assert.Equal(t, "/tmp/test-stories", config.Output.RootDirectory)
	assert.Equal(t, 2, config.Download.ConcurrentDownloads)
	assert.Equal(t, 4, config.Ingest.PostsPerAccount)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvLegacyNames(t *testing.T) {
	t.Setenv("INSTAGRAM_SESSION_ID", "legacy-session")
	t.Setenv("INSTAGRAM_USER", "someone")
	t.Setenv("INSTAGRAM_PASS", "secret")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "legacy-session", config.Instagram.SessionID)
	assert.Equal(t, "someone", config.Instagram.Username)
	assert.Equal(t, "secret", config.Instagram.Password)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("CITYSTORIES_CONCURRENT_DOWNLOADS", "many")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CITYSTORIES_CONCURRENT_DOWNLOADS")
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "citystories.yaml")
	content := `accounts:
  - key: alpha
    region_id: TR-01
    name: Alpha
    handle: alpha_city
instagram:
  session_id: from-file
pacing:
  asset_delay: 500ms
  account_delay: 2s
download:
  concurrent_downloads: 2
output:
  root_directory: /srv/stories
  path_prefix: stories
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	require.Len(t, config.Accounts, 1)
	assert.Equal(t, "alpha_city", config.Accounts[0].Handle)
	assert.Equal(t, "Alpha", config.Accounts[0].DisplayName)
	assert.Equal(t, "from-file", config.Instagram.SessionID)
	assert.Equal(t, 500*time.Millisecond, config.Pacing.AssetDelay)
	assert.Equal(t, 2*time.Second, config.Pacing.AccountDelay)
	assert.Equal(t, 2, config.Download.ConcurrentDownloads)
	assert.Equal(t, "stories", config.Output.PathPrefix)
	// untouched values keep their defaults
	assert.Equal(t, time.Second, config.Pacing.MetadataDelay)
	assert.Equal(t, "936619743392459", config.Instagram.AppID)
}

func TestLoadFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "citystories.toml")
	content := `[[accounts]]
key = "beta"
region_id = "TR-02"
name = "Beta"
handle = "beta.city"

[instagram]
session_id = "toml-session"

[pacing]
account_delay = "5s"

[ingest]
posts_per_account = 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	require.Len(t, config.Accounts, 1)
	assert.Equal(t, "beta.city", config.Accounts[0].Handle)
	assert.Equal(t, "toml-session", config.Instagram.SessionID)
	assert.Equal(t, 5*time.Second, config.Pacing.AccountDelay)
	assert.Equal(t, 3, config.Ingest.PostsPerAccount)
}

func TestLoadFromFileMissing(t *testing.T) {
	config := DefaultConfig()
	err := config.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Instagram.SessionID = "abc123"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing session id",
			mutate:  func(c *Config) { c.Instagram.SessionID = "" },
			wantErr: "session ID is required",
		},
		{
			name:    "placeholder session id",
			mutate:  func(c *Config) { c.Instagram.SessionID = PlaceholderSessionID },
			wantErr: "session ID is required",
		},
		{
			name: "login mode needs password",
			mutate: func(c *Config) {
				c.Instagram.AuthMode = AuthModeLogin
				c.Instagram.Username = "someone"
			},
			wantErr: "password is required",
		},
		{
			name:    "no accounts",
			mutate:  func(c *Config) { c.Accounts = nil },
			wantErr: "at least one account",
		},
		{
			name: "duplicate key",
			mutate: func(c *Config) {
				c.Accounts = append(c.Accounts, c.Accounts[0])
				c.Accounts[3].Handle = "other"
			},
			wantErr: "duplicate key",
		},
		{
			name:    "bad handle",
			mutate:  func(c *Config) { c.Accounts[0].Handle = "../etc" },
			wantErr: "invalid handle",
		},
		{
			name:    "too many workers",
			mutate:  func(c *Config) { c.Download.ConcurrentDownloads = 8 },
			wantErr: "should not exceed 3",
		},
		{
			name:    "posts out of range",
			mutate:  func(c *Config) { c.Ingest.PostsPerAccount = 50 },
			wantErr: "between 1 and 12",
		},
		{
			name:    "manifest in subdirectory",
			mutate:  func(c *Config) { c.Output.ManifestFile = "sub/manifest.json" },
			wantErr: "plain file name",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"session-id":           "flag-session",
		"output":               "/flag/out",
		"concurrent-downloads": 3,
		"posts-per-account":    0, // ignored
		"log-level":            "warn",
	})

	assert.Equal(t, "flag-session", config.Instagram.SessionID)
	assert.Equal(t, "/flag/out", config.Output.RootDirectory)
	assert.Equal(t, 3, config.Download.ConcurrentDownloads)
	assert.Equal(t, 6, config.Ingest.PostsPerAccount)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instagram:\n  session_id: file-session\noutput:\n  root_directory: /from/file\n"), 0644))

	t.Setenv("CITYSTORIES_SESSION_ID", "env-session")

	cfg, err := Load(path, map[string]interface{}{"output": "/from/flag"})
	require.NoError(t, err)
	assert.Equal(t, "env-session", cfg.Instagram.SessionID)
	assert.Equal(t, "/from/flag", cfg.Output.RootDirectory)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	original := DefaultConfig()
	original.Instagram.SessionID = "saved"
	original.Pacing.AssetDelay = 250 * time.Millisecond
	require.NoError(t, original.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, original.Accounts, loaded.Accounts)
	assert.Equal(t, "saved", loaded.Instagram.SessionID)
	assert.Equal(t, 250*time.Millisecond, loaded.Pacing.AssetDelay)
}

func TestRedacted(t *testing.T) {
	config := DefaultConfig()
	config.Instagram.SessionID = "1234567890abcdef"
	config.Instagram.Password = "short"

	r := config.Redacted()
	assert.Equal(t, "1234...cdef", r.Instagram.SessionID)
	assert.Equal(t, "********", r.Instagram.Password)
	assert.Equal(t, "1234567890abcdef", config.Instagram.SessionID)
}
