package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"citystories/pkg/models"
)

const tempSuffix = ".tmp"

// Manager owns the on-disk layout: one directory per account handle under
// the root, plus the manifest file at the root.
type Manager struct {
	root       string
	pathPrefix string
}

// NewManager creates the root directory if needed. pathPrefix is prepended
// to every relative path handed out for the manifest.
func NewManager(root, pathPrefix string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{
		root:       root,
		pathPrefix: strings.Trim(filepath.ToSlash(pathPrefix), "/"),
	}, nil
}

// Root returns the output root directory
func (m *Manager) Root() string {
	return m.root
}

// AccountDir returns the directory holding an account's assets
func (m *Manager) AccountDir(handle string) string {
	return filepath.Join(m.root, handle)
}

// EnsureAccountDir creates the account directory. A regular file squatting
// on that path is removed first. Leftover temp files from an interrupted
// run are cleaned up.
func (m *Manager) EnsureAccountDir(handle string) (string, error) {
	if handle == "" || strings.ContainsAny(handle, `/\`) || handle == "." || handle == ".." {
		return "", fmt.Errorf("invalid account handle %q", handle)
	}
	dir := m.AccountDir(handle)

	if info, err := os.Lstat(dir); err == nil && !info.IsDir() {
		if err := os.Remove(dir); err != nil {
			return "", fmt.Errorf("failed to remove file at %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create account directory: %w", err)
	}
	if err := RemoveStaleTemps(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// AssetPath is one asset location, absolute on disk and relative for the manifest
type AssetPath struct {
	Local    string
	Relative string
}

// PrimaryPath returns where a post's main asset goes: <handle>/<code>.mp4
// for videos, <handle>/<code>.jpg otherwise
func (m *Manager) PrimaryPath(handle, shortCode string, kind models.MediaKind) AssetPath {
	ext := ".jpg"
	if kind == models.MediaKindVideo {
		ext = ".mp4"
	}
	return m.assetPath(handle, shortCode+ext)
}

// ThumbnailPath returns where a video's poster image goes
func (m *Manager) ThumbnailPath(handle, shortCode string) AssetPath {
	return m.assetPath(handle, shortCode+"_thumb.jpg")
}

func (m *Manager) assetPath(handle, name string) AssetPath {
	return AssetPath{
		Local:    filepath.Join(m.root, handle, name),
		Relative: path.Join(m.pathPrefix, handle, name),
	}
}

// ManifestPath returns the manifest location under the root
func (m *Manager) ManifestPath(name string) string {
	return filepath.Join(m.root, name)
}

// Resolve maps a manifest-relative path back to its location on disk
func (m *Manager) Resolve(relative string) string {
	rel := strings.TrimPrefix(relative, "/")
	if m.pathPrefix != "" {
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, m.pathPrefix), "/")
	}
	return filepath.Join(m.root, filepath.FromSlash(rel))
}

// Exists reports whether a manifest-relative path is a regular file on disk
func (m *Manager) Exists(relative string) bool {
	info, err := os.Stat(m.Resolve(relative))
	return err == nil && info.Mode().IsRegular()
}

// WriteFileAtomic streams r into a temp file next to path, syncs it and
// renames it over path. On any failure the temp file is removed and path
// is left untouched. Returns the number of bytes written.
func WriteFileAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*"+tempSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(stage string, err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to %s: %w", stage, err)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		return fail("write data", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync file", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("set permissions", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return n, nil
}

// RemoveStaleTemps deletes temp files WriteFileAtomic left behind in dir
// after a crash
func RemoveStaleTemps(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale temp file: %w", err)
		}
	}
	return nil
}
