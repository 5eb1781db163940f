package vinter

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// handleUploadCommand implements the 'vinter upload' command: publish the
// artifacts in dist/ to the R2 bucket. Objects whose recorded sha256 already
// matches the local file are skipped, so re-running after a reproducible
// rebuild is a no-op.
func handleUploadCommand(args []string, cfg *Config) error {
	ctx := context.Background()

	cleanup := false
	assumeYes := false
	for _, arg := range args {
		switch arg {
		case "--cleanup", "-c":
			cleanup = true
		case "--yes", "-y":
			assumeYes = true
		}
	}

	if err := setupBuildContext(); err != nil {
		return err
	}

	r2, err := NewR2Client(cfg)
	if err != nil {
		return err
	}

	prefix := cfg.Values["VINTER_R2_PREFIX"]
	if prefix == "" {
		prefix = "releases"
	}

	files, err := filepath.Glob(filepath.Join(distDir(), "*.exe"))
	if err != nil {
		return err
	}
	for _, extra := range []string{"SHA256SUMS", "SHA256SUMS.sig"} {
		p := filepath.Join(distDir(), extra)
		if fileExists(p) {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("nothing to upload in %s, run a build first", distDir())
	}
	sort.Strings(files)

	active := make(map[string]bool)
	var uploaded, skipped int
	for _, file := range files {
		name := filepath.Base(file)
		key := path.Join(prefix, name)
		active[key] = true

		sum, err := sha256File(file)
		if err != nil {
			return err
		}
		remote, err := r2.RemoteSHA256(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to probe %s: %w", key, err)
		}
		if remote == sum {
			debugf("Skipping %s (already uploaded)\n", name)
			skipped++
			continue
		}

		colArrow.Print("-> ")
		if !assumeYes && !askForConfirmation(colWarn, "Upload %s?", name) {
			continue
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Uploading to R2: %s\n", key)
		if err := r2.UploadLocalFile(ctx, key, file, sum); err != nil {
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
		uploaded++
	}

	if cleanup {
		colArrow.Print("-> ")
		colSuccess.Println("Checking for stale artifacts on R2")
		remoteObjects, err := r2.ListObjects(ctx, prefix+"/")
		if err != nil {
			return fmt.Errorf("failed to list remote files: %w", err)
		}

		var deleted int
		for _, obj := range remoteObjects {
			if active[obj.Key] || !strings.HasSuffix(obj.Key, ".exe") {
				continue
			}
			colArrow.Print("-> ")
			if assumeYes || askForConfirmation(colError, "Delete stale artifact from R2: %s?", obj.Key) {
				if err := r2.DeleteFile(ctx, obj.Key); err != nil {
					cPrintf(colWarn, "Warning: failed to delete %s: %v\n", obj.Key, err)
				} else {
					deleted++
				}
			}
		}
		if deleted > 0 {
			colSuccess.Printf("Cleanup complete, deleted %d old files\n", deleted)
		}
	}

	colSuccess.Printf("Upload complete: %d uploaded, %d unchanged\n", uploaded, skipped)
	return nil
}
