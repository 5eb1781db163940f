package vinter

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// archInfo maps a target architecture to everything that depends on it.
type archInfo struct {
	InstallerDir  string // python.org installer directory name
	WineArch      string // WINEARCH value
	Mingw         string // default cross toolchain triplet
	OpenSSLTarget string // openssl Configure target
	BootloaderDir string // PyInstaller bootloader output directory
}

// Exactly two architectures are recognized. Anything else is fatal before
// any download or build action.
var archTable = map[string]archInfo{
	"x86_64": {
		InstallerDir:  "amd64",
		WineArch:      "win64",
		Mingw:         "x86_64-w64-mingw32",
		OpenSSLTarget: "mingw64",
		BootloaderDir: "Windows-64bit",
	},
	"i686": {
		InstallerDir:  "win32",
		WineArch:      "win32",
		Mingw:         "i686-w64-mingw32",
		OpenSSLTarget: "mingw",
		BootloaderDir: "Windows-32bit",
	},
}

func validateArch(a string) error {
	if _, ok := archTable[a]; !ok {
		return fmt.Errorf("%w: %q (supported: x86_64, i686)", errUnsupportedArch, a)
	}
	return nil
}

// applyArchDefaults fills in the arch-derived defaults that initConfig left
// open. Must run after validateArch.
func applyArchDefaults() {
	info := archTable[WinArch]
	if TripletHost == "" {
		TripletHost = info.Mingw
	}
	if KeyringPath == "" && RepoDir != "" {
		KeyringPath = filepath.Join(workDir(), "pubkeys", "python.asc")
	}
}

// resolveRepoDir locates the repository to build: the configured VINTER_REPO
// if set, otherwise the git toplevel of the current directory. Failure to
// resolve is a usage error reported before any side effect.
func resolveRepoDir() (string, error) {
	if RepoDir != "" {
		abs, err := filepath.Abs(RepoDir)
		if err != nil {
			return "", fmt.Errorf("cannot resolve VINTER_REPO %q: %w", RepoDir, err)
		}
		if st, err := os.Stat(abs); err != nil || !st.IsDir() {
			return "", fmt.Errorf("%w: VINTER_REPO %q is not a directory", errUsage, RepoDir)
		}
		return abs, nil
	}

	var out bytes.Buffer
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: not inside a git checkout and VINTER_REPO is unset", errUsage)
	}
	top := strings.TrimSpace(out.String())
	if top == "" {
		return "", fmt.Errorf("%w: could not resolve the repository root", errUsage)
	}
	return top, nil
}

// gitSafeDirectory registers the repository with git's safe.directory list so
// builds inside containers (repo owned by another uid) do not trip git's
// ownership check.
func gitSafeDirectory(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolved = dir
	}
	cmd := exec.Command("git", "config", "--global", "--add", "safe.directory", resolved)
	if err := HostExec.Run(cmd); err != nil {
		return fmt.Errorf("git safe.directory setup failed: %w", err)
	}
	return nil
}

// Working-area layout, all under the repository's contrib/build-wine.

func workDir() string  { return filepath.Join(RepoDir, "contrib", "build-wine") }
func buildDir() string { return filepath.Join(workDir(), "build") }
func distDir() string  { return filepath.Join(workDir(), "dist") }
func logDir() string   { return filepath.Join(buildDir(), "logs") }
func srcDir() string   { return filepath.Join(buildDir(), Package) }

// prefixDir is the shared DESTDIR the dependency builds install into; later
// dependencies link against earlier ones there.
func prefixDir() string { return filepath.Join(buildDir(), "prefix") }

// wipeWorkDirs removes stale build/ and dist/ output from a previous run and
// recreates the layout. Runs only after every usage/arch gate has passed.
func wipeWorkDirs() error {
	for _, dir := range []string{buildDir(), distDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove stale %s: %w", dir, err)
		}
	}
	for _, dir := range []string{buildDir(), distDir(), logDir(), prefixDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// ensureWorkDirs creates the layout without wiping, for subcommands that
// operate on a partial pipeline (deps, env).
func ensureWorkDirs() error {
	for _, dir := range []string{buildDir(), distDir(), logDir(), prefixDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
