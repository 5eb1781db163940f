package vinter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocaleNames(t *testing.T) {
	setTestGlobals(t)

	assert.Equal(t, "electron-cash", localeDomain())
	assert.Equal(t, filepath.Join("electroncash", "locale"), localeRelDir())

	Package = "Electrum"
	assert.Equal(t, "electrum", localeDomain())
	assert.Equal(t, filepath.Join("electrum", "locale"), localeRelDir())
}

func TestCompileLocalesMissingCatalogs(t *testing.T) {
	setTestGlobals(t)

	// A checkout without any locale tree is fine; translations are
	// best-effort.
	var log bytes.Buffer
	compileLocales(t.TempDir(), &log)
}

func TestCompileLocalesSwallowsCompileFailure(t *testing.T) {
	setTestGlobals(t)

	src := t.TempDir()
	msgDir := filepath.Join(src, "electroncash", "locale", "de_DE", "LC_MESSAGES")
	require.NoError(t, os.MkdirAll(msgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(msgDir, "electron-cash.po"),
		[]byte("this is not a valid catalog"), 0o644))

	// Whether msgfmt is missing or rejects the catalog, packaging goes on.
	var log bytes.Buffer
	compileLocales(src, &log)

	assert.NoFileExists(t, filepath.Join(msgDir, "electron-cash.mo"))
}

func TestCompileLocalesSkipsForeignDomains(t *testing.T) {
	setTestGlobals(t)

	src := t.TempDir()
	msgDir := filepath.Join(src, "electroncash", "locale", "fr_FR", "LC_MESSAGES")
	require.NoError(t, os.MkdirAll(msgDir, 0o755))
	// A catalog for another domain is not ours to compile.
	require.NoError(t, os.WriteFile(filepath.Join(msgDir, "other-app.po"), []byte("x"), 0o644))

	var log bytes.Buffer
	compileLocales(src, &log)

	assert.NoFileExists(t, filepath.Join(msgDir, "other-app.mo"))
}
