package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"citystories/pkg/config"
)

// DefaultProfile is the credential name used when none is given
const DefaultProfile = "default"

// Credential is a stored Instagram web session
type Credential struct {
	Name      string    `json:"name"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials under cred.Name
	Store(cred *Credential) error

	// Retrieve gets credentials for a name
	Retrieve(name string) (*Credential, error)

	// List returns all stored credentials
	List() ([]*Credential, error)

	// Delete removes credentials for a name
	Delete(name string) error

	// Exists checks if credentials exist for a name
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keyring when
// available, an encrypted file under configDir, and the environment
func NewManager(configDir string) (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, in priority order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(cred *Credential) error {
	if cred == nil || cred.Name == "" {
		return errors.New("credential name is required")
	}
	if cred.SessionID == "" {
		return errors.New("session ID is required")
	}

	cred.UpdatedAt = time.Now().UTC()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Credential, error) {
	if name == "" {
		name = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(name); err == nil && cred != nil {
			return cred, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// List returns stored credentials from all stores, sorted by name. When a
// name appears in several stores the most recently updated copy wins.
func (m *Manager) List() ([]*Credential, error) {
	byName := make(map[string]*Credential)

	for _, store := range m.stores {
		creds, err := store.List()
		if err != nil {
			continue
		}
		for _, cred := range creds {
			if existing, ok := byName[cred.Name]; !ok || cred.UpdatedAt.After(existing.UpdatedAt) {
				byName[cred.Name] = cred
			}
		}
	}

	result := make([]*Credential, 0, len(byName))
	for _, cred := range byName {
		result = append(result, cred)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes credentials from every writable store
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(name)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrCredentialsNotFound):
		default:
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// Apply fills the session fields of cfg from the named credential when the
// configuration does not carry a session already. It reports whether a
// stored credential was used.
func (m *Manager) Apply(cfg *config.InstagramConfig, name string) (bool, error) {
	if cfg.AuthMode != config.AuthModeSession || hasSession(cfg) {
		return false, nil
	}
	cred, err := m.Retrieve(name)
	if err != nil {
		return false, err
	}
	cfg.SessionID = cred.SessionID
	if cfg.CSRFToken == "" {
		cfg.CSRFToken = cred.CSRFToken
	}
	if cred.UserAgent != "" {
		cfg.UserAgent = cred.UserAgent
	}
	return true, nil
}

func hasSession(cfg *config.InstagramConfig) bool {
	return cfg.SessionID != "" && cfg.SessionID != config.PlaceholderSessionID
}

// DefaultConfigDir returns the per-user directory for citystories state
func DefaultConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "citystories")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "citystories")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "citystories")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "citystories")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy of cred with the secrets masked
func Sanitize(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	return &Credential{
		Name:      cred.Name,
		SessionID: maskString(cred.SessionID),
		CSRFToken: maskString(cred.CSRFToken),
		UserAgent: cred.UserAgent,
		UpdatedAt: cred.UpdatedAt,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
