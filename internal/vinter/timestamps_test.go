package vinter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamps(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths := []string{
		filepath.Join(root, "lib", "site-packages", "electroncash", "__init__.py"),
		filepath.Join(root, "python.exe"),
	}
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	// Give everything a "now" mtime first so the reset is observable.
	now := time.Now()
	for _, p := range paths {
		require.NoError(t, os.Chtimes(p, now, now))
	}

	require.NoError(t, normalizeTimestamps(root))

	for _, p := range append(paths, root, filepath.Join(root, "lib")) {
		st, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, st.ModTime().Equal(refInstant), "%s: got %v", p, st.ModTime())
	}
}

func TestNormalizeTimestampsSkipsSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("real", filepath.Join(root, "alias")))
	// A dangling link must not fail the walk either.
	require.NoError(t, os.Symlink("gone", filepath.Join(root, "dangling")))

	require.NoError(t, normalizeTimestamps(root))

	st, err := os.Stat(filepath.Join(root, "real"))
	require.NoError(t, err)
	assert.True(t, st.ModTime().Equal(refInstant))
}

func TestRefInstantIsFixed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Date(2000, 11, 11, 11, 11, 11, 0, time.UTC), refInstant)
}
