package vinter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tor.exe")
	require.NoError(t, os.WriteFile(path, []byte("MZ"), 0o644))

	assert.True(t, fileExists(path))
	assert.False(t, fileExists(dir), "directories do not count")
	assert.False(t, fileExists(filepath.Join(dir, "missing")))
}

func TestCopyFilePreservesMode(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "configure")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))

	dst := filepath.Join(t.TempDir(), "configure")
	require.NoError(t, copyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n", string(data))

	st, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), st.Mode().Perm())
}

func TestCopyDir(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "contrib", "build-wine"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "setup.py"), []byte("from setuptools"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(src, "contrib", "build-wine", "electron-cash.nsi"), []byte("!include"), 0o644))

	dst := filepath.Join(t.TempDir(), "drive_c", "electron-cash")
	require.NoError(t, copyDir(src, dst))

	assert.FileExists(t, filepath.Join(dst, "setup.py"))
	data, err := os.ReadFile(filepath.Join(dst, "contrib", "build-wine", "electron-cash.nsi"))
	require.NoError(t, err)
	assert.Equal(t, "!include", string(data))
}

func TestMoveFile(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "Electron-Cash-4.0.0-x86_64-setup.exe")
	require.NoError(t, os.WriteFile(src, []byte("MZsetup"), 0o755))

	dst := filepath.Join(t.TempDir(), "Electron-Cash-4.0.0-x86_64-setup.exe")
	require.NoError(t, moveFile(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "MZsetup", string(data))
}
