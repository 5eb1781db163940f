package vinter

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// checkoutInfo records what was actually built.
type checkoutInfo struct {
	Version string // git describe --tags --dirty --always
	Commit  string // rev-parse HEAD
}

// checkoutSource clones the repository into build/<package> and checks out
// the requested tag or branch. Building from a fresh clone keeps the
// operator's working tree out of the artifacts.
func checkoutSource(tag string, log io.Writer) (*checkoutInfo, error) {
	dest := srcDir()
	origin := RemoteURL
	if origin == "" {
		origin = RepoDir
	}

	if err := run(HostExec, log, exec.Command("git", "clone", origin, dest)); err != nil {
		return nil, fmt.Errorf("git clone of %s failed: %w", origin, err)
	}
	_ = exec.Command("git", "-C", dest, "config", "advice.detachedHead", "false").Run()

	if err := run(HostExec, log, exec.Command("git", "-C", dest, "checkout", tag)); err != nil {
		return nil, fmt.Errorf("git checkout %q failed: %w", tag, err)
	}

	subArgs := []string{"-C", dest, "submodule", "update", "--init", "--recursive"}
	if ShallowClone {
		subArgs = append(subArgs, "--depth", "1")
	}
	if err := run(HostExec, log, exec.Command("git", subArgs...)); err != nil {
		return nil, fmt.Errorf("git submodule update failed: %w", err)
	}

	ver, err := gitOutput(dest, "describe", "--tags", "--dirty", "--always")
	if err != nil {
		return nil, err
	}
	commit, err := gitOutput(dest, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	return &checkoutInfo{Version: ver, Commit: commit}, nil
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// clonePinned checks out an exact upstream commit into dest. With shallow
// clones enabled it fetches just that commit; otherwise it falls back to a
// full clone plus checkout.
func clonePinned(repoURL, commit, dest string, log io.Writer) error {
	if ShallowClone {
		steps := [][]string{
			{"init", dest},
			{"-C", dest, "remote", "add", "origin", repoURL},
			{"-C", dest, "fetch", "--depth", "1", "origin", commit},
			{"-C", dest, "checkout", "FETCH_HEAD"},
		}
		for _, args := range steps {
			if err := run(HostExec, log, exec.Command("git", args...)); err != nil {
				return fmt.Errorf("shallow fetch of %s@%s failed: %w", repoURL, commit, err)
			}
		}
		return nil
	}

	if err := run(HostExec, log, exec.Command("git", "clone", repoURL, dest)); err != nil {
		return fmt.Errorf("git clone of %s failed: %w", repoURL, err)
	}
	_ = exec.Command("git", "-C", dest, "config", "advice.detachedHead", "false").Run()
	if err := run(HostExec, log, exec.Command("git", "-C", dest, "checkout", commit)); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", commit, err)
	}
	return nil
}
