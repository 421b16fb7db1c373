package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"citystories/pkg/storage"
)

// FileChecker reports whether a manifest-relative path exists on disk
type FileChecker interface {
	Exists(relative string) bool
}

// Verify drops stories whose file is gone and clears thumbnails that are
// gone, so the manifest never points at missing files. It returns the
// number of stories dropped.
func Verify(m *Manifest, files FileChecker) int {
	dropped := 0
	for _, key := range m.Accounts.keys {
		acc := m.Accounts.byKey[key]
		kept := make([]Story, 0, len(acc.Stories))
		for _, s := range acc.Stories {
			if !files.Exists(s.File) {
				dropped++
				continue
			}
			if s.Thumb != nil && !files.Exists(*s.Thumb) {
				s.Thumb = nil
			}
			kept = append(kept, s)
		}
		acc.Stories = kept
		m.Accounts.byKey[key] = acc
	}
	return dropped
}

// Encode renders the manifest as indented UTF-8 JSON
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the manifest to path atomically; an existing manifest is
// replaced only once the new one is complete on disk
func Save(path string, m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := storage.WriteFileAtomic(path, bytes.NewReader(data), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest written by Save
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
