package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citystories/pkg/models"
)

func TestNewManagerCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out", "stories")
	manager, err := NewManager(root, "")
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, root, manager.Root())
	assert.Equal(t, filepath.Join(root, "manifest.json"), manager.ManifestPath("manifest.json"))
}

func TestAssetPaths(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, "")
	require.NoError(t, err)

	img := manager.PrimaryPath("alpha", "ABC", models.MediaKindImage)
	assert.Equal(t, filepath.Join(root, "alpha", "ABC.jpg"), img.Local)
	assert.Equal(t, "alpha/ABC.jpg", img.Relative)

	vid := manager.PrimaryPath("alpha", "XYZ123", models.MediaKindVideo)
	assert.Equal(t, "alpha/XYZ123.mp4", vid.Relative)

	thumb := manager.ThumbnailPath("alpha", "XYZ123")
	assert.Equal(t, "alpha/XYZ123_thumb.jpg", thumb.Relative)
	assert.Equal(t, filepath.Join(root, "alpha", "XYZ123_thumb.jpg"), thumb.Local)
}

func TestPathPrefix(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, "/stories/")
	require.NoError(t, err)

	p := manager.PrimaryPath("beta", "Q1", models.MediaKindImage)
	assert.Equal(t, "stories/beta/Q1.jpg", p.Relative)
	assert.Equal(t, p.Local, manager.Resolve(p.Relative))

	_, err = manager.EnsureAccountDir("beta")
	require.NoError(t, err)
	assert.False(t, manager.Exists(p.Relative))
	require.NoError(t, os.WriteFile(p.Local, []byte("x"), 0644))
	assert.True(t, manager.Exists(p.Relative))
}

func TestEnsureAccountDir(t *testing.T) {
	root := t.TempDir()
	manager, err := NewManager(root, "")
	require.NoError(t, err)

	t.Run("creates directory", func(t *testing.T) {
		dir, err := manager.EnsureAccountDir("alpha")
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("idempotent and keeps existing files", func(t *testing.T) {
		existing := filepath.Join(root, "alpha", "OLD.jpg")
		require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))
		_, err := manager.EnsureAccountDir("alpha")
		require.NoError(t, err)
		assert.FileExists(t, existing)
	})

	t.Run("replaces file squatting on the path", func(t *testing.T) {
		squat := filepath.Join(root, "gamma")
		require.NoError(t, os.WriteFile(squat, []byte("not a dir"), 0644))
		dir, err := manager.EnsureAccountDir("gamma")
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("removes stale temp files", func(t *testing.T) {
		stale := filepath.Join(root, "alpha", ".X.jpg.123.tmp")
		require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))
		_, err := manager.EnsureAccountDir("alpha")
		require.NoError(t, err)
		assert.NoFileExists(t, stale)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := manager.EnsureAccountDir("../escape")
		assert.Error(t, err)
		_, err = manager.EnsureAccountDir("")
		assert.Error(t, err)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "A.jpg")

	n, err := WriteFileAtomic(target, bytes.NewReader([]byte("image-bytes")), 0644)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(content))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

type failingReader struct {
	data []byte
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("connection reset")
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestWriteFileAtomicFailureKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"old":true}`), 0644))

	_, err := WriteFileAtomic(target, &failingReader{data: []byte(`{"new":`)}, 0644)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"old":true}`, string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), tempSuffix), "temp file %s left behind", e.Name())
	}
}

func TestWriteFileAtomicMissingDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "missing", "A.jpg")
	_, err := WriteFileAtomic(target, io.LimitReader(strings.NewReader("x"), 1), 0644)
	require.Error(t, err)
	assert.NoFileExists(t, target)
}
