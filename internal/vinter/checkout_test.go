package vinter

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeUpstreamRepo builds a small git repository with a tagged release and
// one commit on top of it, returning the path and the tagged commit id.
func makeUpstreamRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	git := func(args ...string) {
		t.Helper()
		base := []string{"-C", dir, "-c", "user.name=ci", "-c", "user.email=ci@example.net",
			"-c", "commit.gpgsign=false"}
		cmd := exec.Command("git", append(base, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	git("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte("# v4.0.0\n"), 0o644))
	git("add", ".")
	git("commit", "-q", "-m", "release 4.0.0")
	git("tag", "v4.0.0")

	tagged, err := gitOutput(dir, "rev-parse", "HEAD")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte("# dev\n"), 0o644))
	git("commit", "-aqm", "post-release work")

	return dir, tagged
}

func TestGitOutput(t *testing.T) {
	requireGit(t)
	setTestGlobals(t)

	dir, tagged := makeUpstreamRepo(t)

	head, err := gitOutput(dir, "rev-parse", "HEAD")
	require.NoError(t, err)
	assert.Len(t, head, 40)
	assert.NotEqual(t, tagged, head)

	_, err = gitOutput(dir, "not-a-git-command")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git not-a-git-command failed")
}

func TestCheckoutSource(t *testing.T) {
	requireGit(t)
	setTestGlobals(t)

	upstream, tagged := makeUpstreamRepo(t)
	RemoteURL = upstream
	require.NoError(t, ensureWorkDirs())

	info, err := checkoutSource("v4.0.0", io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "v4.0.0", info.Version)
	assert.Equal(t, tagged, info.Commit)

	// The build works on a clean clone, never on the operator's tree.
	data, err := os.ReadFile(filepath.Join(srcDir(), "setup.py"))
	require.NoError(t, err)
	assert.Equal(t, "# v4.0.0\n", string(data))
}

func TestCheckoutSourceUnknownTag(t *testing.T) {
	requireGit(t)
	setTestGlobals(t)

	upstream, _ := makeUpstreamRepo(t)
	RemoteURL = upstream
	require.NoError(t, ensureWorkDirs())

	_, err := checkoutSource("v9.9.9", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `git checkout "v9.9.9" failed`)
}

func TestClonePinned(t *testing.T) {
	requireGit(t)
	setTestGlobals(t)

	upstream, tagged := makeUpstreamRepo(t)

	// Arbitrary-commit fetches need server cooperation, so local clones take
	// the full-clone path.
	ShallowClone = false
	dest := filepath.Join(t.TempDir(), "pyinstaller")
	require.NoError(t, clonePinned(upstream, tagged, dest, io.Discard))

	head, err := gitOutput(dest, "rev-parse", "HEAD")
	require.NoError(t, err)
	assert.Equal(t, tagged, head)
}

func TestClonePinnedBadCommit(t *testing.T) {
	requireGit(t)
	setTestGlobals(t)

	upstream, _ := makeUpstreamRepo(t)

	ShallowClone = false
	dest := filepath.Join(t.TempDir(), "pyinstaller")
	err := clonePinned(upstream, "0000000000000000000000000000000000000000", dest, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git checkout")
}
