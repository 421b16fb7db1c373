package auth

import (
	"os"
	"time"
)

// EnvironmentStore is a read-only CredentialStore over environment
// variables. It serves one credential under whatever name is asked for.
type EnvironmentStore struct {
	getenv func(string) string
}

// NewEnvironmentStore creates a store reading the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{getenv: os.Getenv}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve builds a credential from CITYSTORIES_SESSION_ID (or
// INSTAGRAM_SESSION_ID) and the optional CSRF token and user agent
func (e *EnvironmentStore) Retrieve(name string) (*Credential, error) {
	sessionID := e.first("CITYSTORIES_SESSION_ID", "INSTAGRAM_SESSION_ID")
	if sessionID == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = DefaultProfile
	}
	return &Credential{
		Name:      name,
		SessionID: sessionID,
		CSRFToken: e.first("CITYSTORIES_CSRF_TOKEN", "INSTAGRAM_CSRF_TOKEN"),
		UserAgent: e.getenv("CITYSTORIES_USER_AGENT"),
		// always older than anything written to a persistent store
		UpdatedAt: time.Time{},
	}, nil
}

// List returns a single credential if the environment carries one
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return e.first("CITYSTORIES_SESSION_ID", "INSTAGRAM_SESSION_ID") != ""
}

func (e *EnvironmentStore) first(keys ...string) string {
	for _, k := range keys {
		if v := e.getenv(k); v != "" {
			return v
		}
	}
	return ""
}
