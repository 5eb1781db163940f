package vinter

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// gpgVerifier checks detached signatures against the pinned release-manager
// keyring. No keyservers are consulted: the keys an artifact may be signed
// with are fixed per release, like every other pin in this pipeline.
type gpgVerifier struct {
	keyring openpgp.EntityList
}

// loadKeyring reads an armored (or, failing that, binary) keyring file.
func loadKeyring(path string) (*gpgVerifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring %s: %w", path, err)
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		// Try reading as binary
		if _, seekErr := f.Seek(0, 0); seekErr != nil {
			return nil, fmt.Errorf("failed to reset keyring file: %w", seekErr)
		}
		entities, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyring %s: %w", path, err)
		}
	}

	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in keyring %s", path)
	}
	return &gpgVerifier{keyring: entities}, nil
}

// verifyDetached checks the detached signature at sigPath over the artifact
// at targetPath. Armored and binary signatures are both accepted.
func (v *gpgVerifier) verifyDetached(targetPath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("empty keyring")
	}

	sigData, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to read signature %s: %w", sigPath, err)
	}
	if len(sigData) < 10 {
		return fmt.Errorf("signature %s too small to be a GPG signature", sigPath)
	}

	f, err := os.Open(targetPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", targetPath, err)
	}
	defer f.Close()

	// Armored signatures start with -----BEGIN PGP SIGNATURE-----
	isArmored := len(sigData) > 27 && string(sigData[:27]) == "-----BEGIN PGP SIGNATURE---"

	var verifyErr error
	if isArmored {
		_, verifyErr = openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(sigData), nil)
	} else {
		_, verifyErr = openpgp.CheckDetachedSignature(v.keyring, f, bytes.NewReader(sigData), nil)
	}

	if verifyErr != nil {
		return fmt.Errorf("signature verification failed for %s: %w", targetPath, verifyErr)
	}
	debugf("GPG signature verified: %s\n", targetPath)
	return nil
}
