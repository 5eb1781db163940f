package vinter

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// refInstant is the fixed timestamp every packaged file is normalized to.
// Freezing mtimes is what makes two builds of the same revision
// byte-identical.
var refInstant = time.Date(2000, 11, 11, 11, 11, 11, 0, time.UTC)

// normalizeTimestamps resets the mtime of every file and directory under
// root to refInstant. Symlinks are skipped (Chtimes follows them).
func normalizeTimestamps(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if err := os.Chtimes(path, refInstant, refInstant); err != nil {
			return fmt.Errorf("failed to set times on %s: %w", path, err)
		}
		return nil
	})
}
