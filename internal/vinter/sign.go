package vinter

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// defaultReleaseKeyID names the key pair used when no id is given.
const defaultReleaseKeyID = "release"

// DefaultKeyDir is where release key pairs live. It is a variable so it can
// be overwritten in tests.
var DefaultKeyDir = ""

func keyDir() string {
	if DefaultKeyDir != "" {
		return DefaultKeyDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".vinter", "keys")
	}
	return filepath.Join(home, ".config", "vinter", "keys")
}

// generateKeyPair creates a new Ed25519 release key pair and saves both
// halves hex-encoded. An existing key with the same id is never overwritten.
func generateKeyPair(id string) error {
	privPath := filepath.Join(keyDir(), id+".key")
	pubPath := filepath.Join(keyDir(), id+".pub")
	if fileExists(privPath) {
		return fmt.Errorf("key %q already exists at %s", id, privPath)
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	if err := os.MkdirAll(keyDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0o644); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Generated key pair %s (public key %s)\n", id, hex.EncodeToString(pub))
	return nil
}

// parsePrivateKey accepts a 128-char hex encoding or the raw 64 bytes.
func parsePrivateKey(data []byte, origin string) (ed25519.PrivateKey, error) {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 128 {
		decoded, err := hex.DecodeString(trimmed)
		if err == nil && len(decoded) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(decoded), nil
		}
	}
	if len(data) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(data), nil
	}
	return nil, fmt.Errorf("invalid private key format at %s (expected 64 bytes raw or 128 hex chars, got %d)", origin, len(trimmed))
}

func loadPrivateKey(id string) (ed25519.PrivateKey, error) {
	keyPath := filepath.Join(keyDir(), id+".key")
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("private key not found at %s", keyPath)
	}
	return parsePrivateKey(keyData, keyPath)
}

func loadPublicKey(id string) (ed25519.PublicKey, error) {
	keyPath := filepath.Join(keyDir(), id+".pub")
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("public key %q not found at %s", id, keyPath)
	}

	trimmed := strings.TrimSpace(string(keyData))
	if len(trimmed) == 64 {
		decoded, err := hex.DecodeString(trimmed)
		if err == nil && len(decoded) == ed25519.PublicKeySize {
			return ed25519.PublicKey(decoded), nil
		}
	}
	if len(keyData) == ed25519.PublicKeySize {
		return ed25519.PublicKey(keyData), nil
	}
	return nil, fmt.Errorf("invalid public key format at %s", keyPath)
}

// promptPrivateKey loads the release key from disk, falling back to a hidden
// terminal prompt when the key file is absent (CI secrets pasted by hand).
func promptPrivateKey(id string) (ed25519.PrivateKey, error) {
	if priv, err := loadPrivateKey(id); err == nil {
		debugf("Using signing key from %s\n", filepath.Join(keyDir(), id+".key"))
		return priv, nil
	}

	fmt.Printf("Enter signing key %q (hex): ", id)
	entered, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return parsePrivateKey(entered, "terminal input")
}

// signData signs arbitrary data with a private key.
func signData(data []byte, privateKey ed25519.PrivateKey) []byte {
	return ed25519.Sign(privateKey, data)
}

// verifySignatureRaw verifies a hex signature against public key bytes.
func verifySignatureRaw(data, sigHex []byte, publicKey ed25519.PublicKey) error {
	signature, err := hex.DecodeString(strings.TrimSpace(string(sigHex)))
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}
	if !ed25519.Verify(publicKey, data, signature) {
		return errors.New("signature verification failed")
	}
	return nil
}

// signFile writes a hex-encoded detached signature next to path.
func signFile(path, id string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	priv, err := promptPrivateKey(id)
	if err != nil {
		return err
	}

	sigPath := path + ".sig"
	sigHex := hex.EncodeToString(signData(data, priv))
	if err := os.WriteFile(sigPath, []byte(sigHex), 0o644); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Signed %s -> %s\n", filepath.Base(path), filepath.Base(sigPath))
	return nil
}

// verifyFile checks a detached hex signature produced by signFile.
func verifyFile(path, id string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	sigHex, err := os.ReadFile(path + ".sig")
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	pub, err := loadPublicKey(id)
	if err != nil {
		return err
	}
	if err := verifySignatureRaw(data, sigHex, pub); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Signature of %s OK\n", filepath.Base(path))
	return nil
}

// signChecksums signs the checksum listing in dist/, so downstream consumers
// can verify the published artifacts through one signature.
func signChecksums(id string) error {
	sums := filepath.Join(distDir(), "SHA256SUMS")
	if !fileExists(sums) {
		return fmt.Errorf("%s not found, run a build first", sums)
	}
	return signFile(sums, id)
}
