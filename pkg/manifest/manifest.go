package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"citystories/pkg/models"
)

// Manifest is the document written at the end of every run
type Manifest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Accounts    Accounts  `json:"accounts"`
}

// Account is the public projection of one models.AccountResult
type Account struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Handle  string  `json:"handle"`
	Stories []Story `json:"stories"`
	// Error is set when the account's timeline could not be fetched
	Error string `json:"error,omitempty"`
}

// Story is one downloaded item
type Story struct {
	File      string     `json:"file"`
	Thumb     *string    `json:"thumb"`
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp"`
	Caption   string     `json:"caption"`
	Link      string     `json:"link"`
	Likes     *int       `json:"likes"`
}

// NewAccount projects an account result
func NewAccount(result models.AccountResult) Account {
	acc := Account{
		ID:      result.Account.RegionID,
		Name:    result.Account.DisplayName,
		Handle:  result.Account.Handle,
		Stories: make([]Story, 0, len(result.Entries)),
	}
	if result.FetchError != nil {
		acc.Error = result.FetchError.Error()
	}
	for _, e := range result.Entries {
		acc.Stories = append(acc.Stories, Story{
			File:      e.FilePath,
			Thumb:     e.ThumbnailPath,
			Type:      string(e.Kind),
			Timestamp: e.CapturedAt,
			Caption:   e.CaptionExcerpt,
			Link:      e.Permalink,
			Likes:     e.LikeCount,
		})
	}
	return acc
}

// Accounts maps account keys to accounts and remembers insertion order,
// which is also the order used when encoding
type Accounts struct {
	keys  []string
	byKey map[string]Account
}

// Set adds or replaces an account; a new key goes to the end
func (a *Accounts) Set(key string, acc Account) {
	if a.byKey == nil {
		a.byKey = make(map[string]Account)
	}
	if _, ok := a.byKey[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.byKey[key] = acc
}

// Get returns the account stored under key
func (a *Accounts) Get(key string) (Account, bool) {
	acc, ok := a.byKey[key]
	return acc, ok
}

// Has reports whether key is present
func (a *Accounts) Has(key string) bool {
	_, ok := a.byKey[key]
	return ok
}

// Keys returns the keys in insertion order
func (a *Accounts) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Len returns the number of accounts
func (a *Accounts) Len() int {
	return len(a.keys)
}

func (a Accounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(key)
		if err != nil {
			return nil, err
		}
		v, err := marshalNoEscape(a.byKey[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Accounts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("accounts: expected object, got %v", tok)
	}

	*a = Accounts{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("accounts: expected key, got %v", tok)
		}
		var acc Account
		if err := dec.Decode(&acc); err != nil {
			return fmt.Errorf("accounts[%s]: %w", key, err)
		}
		if acc.Stories == nil {
			acc.Stories = []Story{}
		}
		a.Set(key, acc)
	}
	_, err = dec.Token()
	return err
}

// marshalNoEscape encodes v without turning <, > and & into \u escapes
func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
