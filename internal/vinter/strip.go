package vinter

import (
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
)

// stripBinary strips symbols from a cross-built PE binary using the
// toolchain's strip. Symbol tables differ from build to build and must not
// reach the published artifacts.
func stripBinary(path string, log io.Writer) error {
	strip := TripletHost + "-strip"
	if err := run(HostExec, log, exec.Command(strip, path)); err != nil {
		return fmt.Errorf("%s on %s failed: %w", strip, filepath.Base(path), err)
	}
	return nil
}

// stripTree strips every PE binary under dir. The staged native libraries
// pass through here before the freeze bundles them.
func stripTree(dir string, log io.Writer) error {
	var targets []string
	for _, pat := range []string{"*.dll", "*.exe", "*.pyd"} {
		m, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return err
		}
		targets = append(targets, m...)
	}
	for _, t := range targets {
		if err := stripBinary(t, log); err != nil {
			return err
		}
	}
	return nil
}
