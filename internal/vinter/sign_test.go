package vinter

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	setTestGlobals(t)

	require.NoError(t, generateKeyPair("release"))

	privData, err := os.ReadFile(filepath.Join(DefaultKeyDir, "release.key"))
	require.NoError(t, err)
	assert.Len(t, privData, 128, "private key is stored hex-encoded")

	pubData, err := os.ReadFile(filepath.Join(DefaultKeyDir, "release.pub"))
	require.NoError(t, err)
	assert.Len(t, pubData, 64)

	st, err := os.Stat(filepath.Join(DefaultKeyDir, "release.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	err = generateKeyPair("release")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSignVerifyFileRoundtrip(t *testing.T) {
	setTestGlobals(t)
	require.NoError(t, generateKeyPair("release"))

	artifact := filepath.Join(t.TempDir(), "SHA256SUMS")
	require.NoError(t, os.WriteFile(artifact,
		[]byte("a9489  Electron-Cash-4.0.0-x86_64.exe\n"), 0o644))

	require.NoError(t, signFile(artifact, "release"))
	sig, err := os.ReadFile(artifact + ".sig")
	require.NoError(t, err)
	_, err = hex.DecodeString(string(sig))
	assert.NoError(t, err, "signature is hex-encoded")

	require.NoError(t, verifyFile(artifact, "release"))

	// Any post-signing modification is caught.
	require.NoError(t, os.WriteFile(artifact,
		[]byte("beefc0de  Electron-Cash-4.0.0-x86_64.exe\n"), 0o644))
	err = verifyFile(artifact, "release")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature verification failed")
}

func TestParsePrivateKey(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	got, err := parsePrivateKey([]byte(hex.EncodeToString(priv)), "test")
	require.NoError(t, err)
	assert.Equal(t, priv, got)

	// Raw 64-byte form, and hex with surrounding whitespace.
	got, err = parsePrivateKey(priv, "test")
	require.NoError(t, err)
	assert.Equal(t, priv, got)

	got, err = parsePrivateKey([]byte(hex.EncodeToString(priv)+"\n"), "test")
	require.NoError(t, err)
	assert.Equal(t, priv, got)

	_, err = parsePrivateKey([]byte("not a key"), "stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid private key format")
	assert.Contains(t, err.Error(), "stdin")
}

func TestLoadKeysErrors(t *testing.T) {
	setTestGlobals(t)

	_, err := loadPrivateKey("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private key not found")

	_, err = loadPublicKey("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, os.MkdirAll(DefaultKeyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(DefaultKeyDir, "bad.pub"), []byte("short"), 0o644))
	_, err = loadPublicKey("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid public key format")
}

func TestVerifySignatureRaw(t *testing.T) {
	t.Parallel()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	data := []byte("dist manifest")
	sigHex := []byte(hex.EncodeToString(signData(data, priv)))

	assert.NoError(t, verifySignatureRaw(data, sigHex, pub))

	err = verifySignatureRaw([]byte("tampered manifest"), sigHex, pub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature verification failed")

	err = verifySignatureRaw(data, []byte("zz-not-hex"), pub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signature format")
}

func TestSignChecksumsRequiresBuild(t *testing.T) {
	setTestGlobals(t)

	err := signChecksums("release")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run a build first")
}
