package vinter

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestApplyPyMirror(t *testing.T) {
	setTestGlobals(t)

	official := pyOfficialURL + "/3.9.13/amd64/core.msi"

	// No mirror configured: canonical URL passes through.
	PyMirror = pyOfficialURL
	assert.Equal(t, official, applyPyMirror(official))

	PyMirror = "https://mirror.example.net/python"
	assert.Equal(t, "https://mirror.example.net/python/3.9.13/amd64/core.msi", applyPyMirror(official))

	// Non-Python URLs never get rewritten.
	other := "https://dist.torproject.org/tor-0.4.7.13.tar.gz"
	assert.Equal(t, other, applyPyMirror(other))
}

func TestTryRemoveCachedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stale.msi")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	tryRemoveCachedFile(path)
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".lock")
}

func TestTryRemoveCachedFileRespectsLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inflight.msi")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// Simulate a concurrent download holding the entry's lock.
	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer lock.Close()
	require.NoError(t, unix.Flock(int(lock.Fd()), unix.LOCK_EX))
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	tryRemoveCachedFile(path)
	assert.FileExists(t, path, "a locked cache entry is left alone")
}

func TestFetchCachedHit(t *testing.T) {
	setTestGlobals(t)
	require.NoError(t, os.MkdirAll(DownloadDir, 0o755))

	// Port 1 refuses connections, so any attempted download would fail: a
	// cache hit must not touch the network at all.
	url := "http://127.0.0.1:1/nsis/nsis-3.06.1-setup.exe"
	cached := filepath.Join(DownloadDir, hashString(url)+"-nsis-3.06.1-setup.exe")
	require.NoError(t, os.WriteFile(cached, []byte("cached installer"), 0o644))

	got, err := fetchCached(url, downloadOptions{Quiet: true})
	require.NoError(t, err)
	assert.Equal(t, cached, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "cached installer", string(data))
}

func TestFetchCachedEvictsObsoleteEntries(t *testing.T) {
	setTestGlobals(t)
	require.NoError(t, os.MkdirAll(DownloadDir, 0o755))

	url := "http://127.0.0.1:1/python/core.msi"
	current := filepath.Join(DownloadDir, hashString(url)+"-core.msi")
	require.NoError(t, os.WriteFile(current, []byte("current"), 0o644))

	// Same filename cached under an old URL hash (a pin bump).
	stale := filepath.Join(DownloadDir, "0123456789abcdef-core.msi")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	got, err := fetchCached(url, downloadOptions{Quiet: true})
	require.NoError(t, err)
	assert.Equal(t, current, got)
	assert.NoFileExists(t, stale, "entries for superseded pins are removed")
}

func TestFetchCachedDownloads(t *testing.T) {
	setTestGlobals(t)
	// Hide curl and wget so the native client is exercised.
	t.Setenv("PATH", t.TempDir())

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "installer payload")
	}))
	defer srv.Close()

	url := srv.URL + "/pyinstaller/bootloader.tar.gz"
	got, err := fetchCached(url, downloadOptions{Quiet: true})
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "installer payload", string(data))
	assert.Equal(t, int32(1), hits.Load())
	assert.NoFileExists(t, got+".lock", "the download lock is released")

	// Second fetch is served from the cache.
	_, err = fetchCached(url, downloadOptions{Quiet: true})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchCachedReportsHTTPError(t *testing.T) {
	setTestGlobals(t)
	t.Setenv("PATH", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	url := srv.URL + "/gone.tar.gz"
	_, err := fetchCached(url, downloadOptions{Quiet: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download")

	// No empty partial is left to poison the cache.
	assert.NoFileExists(t, filepath.Join(DownloadDir, hashString(url)+"-gone.tar.gz"))
}
