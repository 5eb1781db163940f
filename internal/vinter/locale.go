package vinter

import (
	"io"
	"os/exec"
	"path/filepath"
	"strings"
)

// localeDomain is the gettext domain, derived from the package name
// (Electron-Cash -> electron-cash).
func localeDomain() string { return strings.ToLower(Package) }

// localeRelDir is the locale tree inside the checkout
// (Electron-Cash -> electroncash/locale).
func localeRelDir() string {
	return filepath.Join(strings.ReplaceAll(localeDomain(), "-", ""), "locale")
}

// compileLocales builds the .mo catalog for every locale in the checkout.
// This is the one best-effort stage of the pipeline: a locale that fails to
// compile is reported and skipped, never fatal. Missing translations do not
// block a release.
func compileLocales(src string, log io.Writer) {
	pattern := filepath.Join(src, localeRelDir(), "*", "LC_MESSAGES")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		cPrintf(colWarn, "No locale catalogs found under %s\n", filepath.Join(src, localeRelDir()))
		return
	}

	domain := localeDomain()
	for _, dir := range matches {
		po := filepath.Join(dir, domain+".po")
		if !fileExists(po) {
			debugf("No %s.po in %s, skipping\n", domain, dir)
			continue
		}
		cmd := exec.Command("msgfmt", domain+".po", "-o", domain+".mo")
		cmd.Dir = dir
		if err := run(HostExec, log, cmd); err != nil {
			cPrintf(colWarn, "Warning: locale compile failed for %s: %v\n", dir, err)
		}
	}
}
