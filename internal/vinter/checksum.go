package vinter

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"
)

func hashString(s string) string {
	// Try system b3sum first
	if _, err := exec.LookPath("b3sum"); err == nil {
		cmd := exec.Command("b3sum")
		cmd.Stdin = strings.NewReader(s)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			fields := strings.Fields(out.String())
			if len(fields) > 0 {
				return fields[0]
			}
		}
	}

	// Fallback: internal Go BLAKE3 (32-byte output, no key)
	h := blake3.New(32, nil)
	h.Write([]byte(s))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// withSharedDownloadLock holds the cache entry's lock while fn runs, so a
// verification never races a concurrent re-download of the same artifact.
func withSharedDownloadLock(lockBase string, fn func() error) error {
	lockPath := lockBase + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return fn()
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cannot hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifySHA256 is the integrity gate for pinned artifacts. A mismatch is
// fatal: the poisoned cache entry is evicted so a rerun re-downloads, and the
// error names the artifact.
func verifySHA256(path, expected string) error {
	var got string
	err := withSharedDownloadLock(path, func() error {
		var hashErr error
		got, hashErr = sha256File(path)
		return hashErr
	})
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		tryRemoveCachedFile(path)
		return fmt.Errorf("sha256 mismatch for %s: expected %s, got %s",
			filepath.Base(path), expected, got)
	}
	debugf("sha256 verified: %s\n", filepath.Base(path))
	return nil
}

// writeChecksums hashes every produced executable, prints sha256sum-style
// lines, and records them in dist/SHA256SUMS for publication.
func writeChecksums(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.exe"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no executables found in %s", dir)
	}
	sort.Strings(matches)

	var sums strings.Builder
	stepf("Artifact checksums:\n")
	for _, path := range matches {
		sum, err := sha256File(path)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s  %s", sum, filepath.Base(path))
		fmt.Println(line)
		sums.WriteString(line)
		sums.WriteString("\n")
	}

	sumsPath := filepath.Join(dir, "SHA256SUMS")
	if err := os.WriteFile(sumsPath, []byte(sums.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", sumsPath, err)
	}
	return nil
}
