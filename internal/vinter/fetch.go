package vinter

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func newHttpClient() (*http.Client, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil || rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}

	// Configure the TLS client to use the trusted CA pool.
	tlsConfig := &tls.Config{
		RootCAs:    rootCAs,
		MinVersion: tls.VersionTLS12,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	// Increase TLS handshake timeout to handle slow distribution mirrors.
	// Default is 10s, we increase it to 30s.
	transport.TLSHandshakeTimeout = 30 * time.Second

	return &http.Client{
		Transport: transport,
		Timeout:   300 * time.Second, // 5 min total timeout for large downloads
	}, nil
}

type downloadOptions struct {
	Quiet bool // Quiet suppresses all stdout/stderr/progress output
}

// tryRemoveCachedFile removes a cached download unless another process holds
// its lock (mid-download or mid-verify).
func tryRemoveCachedFile(path string) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		_ = os.Remove(path)
		return
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		// Someone is downloading or verifying the file; skip cleanup.
		return
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = os.Remove(path)
	_ = os.Remove(lockPath)
}

// applyPyMirror rewrites canonical python.org runtime URLs to the configured
// mirror, if one is set.
func applyPyMirror(originalURL string) string {
	if PyMirror != "" && PyMirror != pyOfficialURL && strings.HasPrefix(originalURL, pyOfficialURL) {
		return strings.Replace(originalURL, pyOfficialURL, PyMirror, 1)
	}
	return originalURL
}

// fetchCached downloads a URL into the blake3-keyed download cache and
// returns the cached path. Already-cached artifacts are returned untouched;
// integrity gates run on every use regardless.
func fetchCached(originalURL string, opt downloadOptions) (string, error) {
	finalURL := applyPyMirror(originalURL)

	parts := strings.Split(originalURL, "/")
	origFilename := parts[len(parts)-1]
	hashName := fmt.Sprintf("%s-%s", hashString(originalURL), origFilename)
	cachePath := filepath.Join(DownloadDir, hashName)

	// Remove stale cache entries for the same filename under an old key
	// (a pin bump changes the URL and therefore the hash prefix).
	globPattern := filepath.Join(DownloadDir, "*-"+origFilename)
	if matches, err := filepath.Glob(globPattern); err == nil {
		for _, match := range matches {
			if match != cachePath {
				debugf("Removing obsolete cached file: %s\n", match)
				tryRemoveCachedFile(match)
			}
		}
	}

	if _, err := os.Stat(cachePath); os.IsNotExist(err) {
		if !opt.Quiet {
			stepf("Fetching %s\n", origFilename)
		}
		if err := downloadFile(originalURL, finalURL, cachePath, opt); err != nil {
			return "", fmt.Errorf("failed to download %s: %w", finalURL, err)
		}
	} else {
		debugf("Already in cache: %s\n", cachePath)
	}
	return cachePath, nil
}

func downloadFile(originalURL, finalURL, destFile string, opt downloadOptions) (retErr error) {
	// If the Python mirror is being used for this download, print the info
	// message exactly once.
	if !opt.Quiet && originalURL != finalURL {
		pyMirrorMessageOnce.Do(func() {
			stepf("Using Python mirror: %s\n", PyMirror)
		})
	}

	// Determine absolute path. Relative destinations land in the download cache.
	var absPath string
	if filepath.IsAbs(destFile) {
		absPath = destFile
	} else {
		if err := os.MkdirAll(DownloadDir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory %s: %w", DownloadDir, err)
		}
		absPath = filepath.Join(DownloadDir, filepath.Base(destFile))
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", absPath, err)
	}
	lockPath := absPath + ".lock"

	// Create/Open a lock file so a concurrent invocation (e.g. a second
	// terminal running 'vinter env') cannot corrupt the cache.
	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()

	// Acquire an exclusive lock. This will block if another process is downloading.
	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock for download: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	// DOUBLE CHECK: now that we have the lock, the file may have appeared.
	if _, err := os.Stat(absPath); err == nil {
		debugf("File %s appeared after acquiring lock, skipping download.\n", absPath)
		_ = os.Remove(lockPath)
		return nil
	}

	// A failed attempt must not leave a partial file behind: a later run
	// would mistake it for a finished download.
	defer func() {
		if retErr != nil {
			_ = os.Remove(absPath)
		}
		_ = os.Remove(lockPath)
	}()

	debugf("Downloading %s -> %s\n", finalURL, absPath)

	// --- Primary choice: curl with Go-native colorization ---
	if _, err := exec.LookPath("curl"); err == nil {
		curlArgs := []string{"-L", "--fail", "-o", absPath}
		if opt.Quiet {
			curlArgs = append(curlArgs, "-sS")
		} else {
			curlArgs = append(curlArgs, "-#")
		}
		curlArgs = append(curlArgs, finalURL)
		cmd := exec.Command("curl", curlArgs...)

		if opt.Quiet {
			cmd.Stdout = io.Discard
			cmd.Stderr = io.Discard
			if err := cmd.Run(); err == nil {
				return nil
			}
			debugf("curl (quiet) failed, falling back to wget\n")
		} else {
			stderrPipe, err := cmd.StderrPipe()
			if err != nil {
				cmd.Stderr = os.Stderr
			}
			cmd.Stdout = os.Stdout

			if err := cmd.Start(); err != nil {
				return fmt.Errorf("failed to start curl: %w", err)
			}

			if stderrPipe != nil {
				go func() {
					reader := bufio.NewReader(stderrPipe)
					blue := "\x1b[" + color.Blue.Code() + "m"
					reset := "\x1b[0m"
					for {
						lineBytes, err := reader.ReadBytes('\r')
						if len(lineBytes) > 0 {
							line := string(lineBytes)
							if strings.HasPrefix(strings.TrimSpace(line), "#") {
								fmt.Fprintf(os.Stderr, "%s%s%s", blue, line, reset)
							} else {
								fmt.Fprint(os.Stderr, line)
							}
						}
						if err != nil {
							break
						}
					}
				}()
			}

			if err := cmd.Wait(); err != nil {
				debugf("\ncurl failed, falling back to wget")
			} else {
				debugf("\nDownload successful with curl.")
				return nil
			}
		}
	} else {
		debugf("curl not found, trying wget")
	}

	// --- Fallback 1: wget ---
	if _, err := exec.LookPath("wget"); err == nil {
		args := []string{"-O", absPath}
		if opt.Quiet {
			args = append([]string{"-q"}, args...)
		} else {
			args = append([]string{"-nv"}, args...)
		}
		args = append(args, finalURL)
		cmd := exec.Command("wget", args...)
		if opt.Quiet {
			cmd.Stdout = io.Discard
			cmd.Stderr = io.Discard
		} else {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err == nil {
			debugf("\nDownload successful with wget.")
			return nil
		}
		debugf("\nwget failed, falling back to native Go HTTP client")
	} else {
		debugf("wget not found, using native Go HTTP client")
	}

	// --- Fallback 2: native Go HTTP client ---
	client, err := newHttpClient()
	if err != nil {
		return fmt.Errorf("failed to create http client: %w", err)
	}

	out, err := os.Create(absPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", absPath, err)
	}
	defer out.Close()

	resp, err := client.Get(finalURL)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	var dst io.Writer = out
	if !opt.Quiet && term.IsTerminal(int(os.Stdout.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, "   "+filepath.Base(absPath))
		defer bar.Close()
		dst = io.MultiWriter(out, bar)
	}

	_, err = io.Copy(dst, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write to destination file: %w", err)
	}

	debugf("Download successful with native Go HTTP client.")
	return nil
}
