package manifest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"citystories/pkg/models"
)

// ErrDuplicateAccount is returned when a second result arrives for a key
var ErrDuplicateAccount = errors.New("account already added")

// Builder folds account results into a Manifest
type Builder struct {
	mu          sync.Mutex
	generatedAt time.Time
	accounts    Accounts
}

// NewBuilder stamps the manifest with now, once for the whole run
func NewBuilder(now time.Time) *Builder {
	return &Builder{generatedAt: now.UTC().Truncate(time.Second)}
}

// Add records one account's result. A key can only be added once; a
// rejected result leaves the earlier one untouched.
func (b *Builder) Add(result models.AccountResult) error {
	key := result.Account.Key
	if key == "" {
		return errors.New("account key is empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.accounts.Has(key) {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, key)
	}
	b.accounts.Set(key, NewAccount(result))
	return nil
}

// Build returns the manifest assembled so far
func (b *Builder) Build() *Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := &Manifest{GeneratedAt: b.generatedAt}
	for _, key := range b.accounts.keys {
		acc := b.accounts.byKey[key]
		acc.Stories = append([]Story{}, acc.Stories...)
		m.Accounts.Set(key, acc)
	}
	return m
}
