package vinter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The testdata fixtures are a detached-signed payload plus the signer's
// public key, exported in both armored and binary form. A signature over the
// same payload by a key outside the keyring is included as the negative case.

func TestLoadKeyringArmored(t *testing.T) {
	t.Parallel()

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.asc"))
	require.NoError(t, err)
	assert.NotEmpty(t, v.keyring)
}

func TestLoadKeyringBinary(t *testing.T) {
	t.Parallel()

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.gpg"))
	require.NoError(t, err)
	assert.NotEmpty(t, v.keyring)
}

func TestLoadKeyringErrors(t *testing.T) {
	t.Parallel()

	_, err := loadKeyring(filepath.Join(t.TempDir(), "absent.asc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open keyring")

	garbage := filepath.Join(t.TempDir(), "garbage.asc")
	require.NoError(t, os.WriteFile(garbage, []byte("not key material"), 0o644))
	_, err = loadKeyring(garbage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyring")
}

func TestVerifyDetachedBinarySignature(t *testing.T) {
	t.Parallel()

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.asc"))
	require.NoError(t, err)

	err = v.verifyDetached(
		filepath.Join("testdata", "component.bin"),
		filepath.Join("testdata", "component.bin.sig"))
	assert.NoError(t, err)
}

func TestVerifyDetachedArmoredSignature(t *testing.T) {
	t.Parallel()

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.asc"))
	require.NoError(t, err)

	err = v.verifyDetached(
		filepath.Join("testdata", "component.bin"),
		filepath.Join("testdata", "component.bin.asc"))
	assert.NoError(t, err)
}

func TestVerifyDetachedTamperedPayload(t *testing.T) {
	t.Parallel()

	payload, err := os.ReadFile(filepath.Join("testdata", "component.bin"))
	require.NoError(t, err)
	payload[0] ^= 0xff
	tampered := filepath.Join(t.TempDir(), "component.bin")
	require.NoError(t, os.WriteFile(tampered, payload, 0o644))

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.asc"))
	require.NoError(t, err)

	err = v.verifyDetached(tampered, filepath.Join("testdata", "component.bin.sig"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature verification failed")
}

func TestVerifyDetachedUntrustedSigner(t *testing.T) {
	t.Parallel()

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.asc"))
	require.NoError(t, err)

	// Signed by a key that is not in the pinned keyring.
	err = v.verifyDetached(
		filepath.Join("testdata", "component.bin"),
		filepath.Join("testdata", "component.bin.wrongkey.sig"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature verification failed")
}

func TestVerifyDetachedTruncatedSignature(t *testing.T) {
	t.Parallel()

	v, err := loadKeyring(filepath.Join("testdata", "release_pubkey.asc"))
	require.NoError(t, err)

	short := filepath.Join(t.TempDir(), "component.bin.sig")
	require.NoError(t, os.WriteFile(short, []byte("x"), 0o644))

	err = v.verifyDetached(filepath.Join("testdata", "component.bin"), short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}
