package vinter

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// setTestGlobals pins the mutable package state to a hermetic baseline under
// a per-test temp dir and restores the previous values on cleanup. Tests
// going through it share package globals and must not run in parallel.
func setTestGlobals(t *testing.T) string {
	t.Helper()

	savedStr := map[*string]string{
		&Package: Package, &RepoDir: RepoDir, &RemoteURL: RemoteURL,
		&WinArch: WinArch, &PyVersion: PyVersion, &PyMirror: PyMirror,
		&KeyringPath: KeyringPath, &WinePrefix: WinePrefix,
		&CacheDir: CacheDir, &DownloadDir: DownloadDir, &SnapshotDir: SnapshotDir,
		&TripletHost: TripletHost, &TripletBuild: TripletBuild,
		&tmpDir: tmpDir, &DefaultKeyDir: DefaultKeyDir,
	}
	savedBool := map[*bool]bool{
		&WantStrip: WantStrip, &ShallowClone: ShallowClone,
		&UseNice: UseNice, &Debug: Debug, &Verbose: Verbose,
	}
	savedStepNum := stepNum
	savedHost, savedWine := HostExec, WineExec
	t.Cleanup(func() {
		for p, v := range savedStr {
			*p = v
		}
		for p, v := range savedBool {
			*p = v
		}
		stepNum = savedStepNum
		HostExec, WineExec = savedHost, savedWine
	})

	root := t.TempDir()
	Package = "Electron-Cash"
	RepoDir = filepath.Join(root, "repo")
	RemoteURL = ""
	WinArch = "x86_64"
	PyVersion = "3.9.13"
	PyMirror = pyOfficialURL
	KeyringPath = ""
	WinePrefix = filepath.Join(root, "wine")
	CacheDir = filepath.Join(root, "cache")
	DownloadDir = filepath.Join(CacheDir, "downloads")
	SnapshotDir = filepath.Join(CacheDir, "env")
	TripletHost = "x86_64-w64-mingw32"
	TripletBuild = "x86_64-pc-linux-gnu"
	tmpDir = os.TempDir()
	DefaultKeyDir = filepath.Join(root, "keys")
	WantStrip = true
	ShallowClone = true
	UseNice = false
	Debug = false
	Verbose = false
	resetStepCounter()

	HostExec = &Executor{Context: context.Background()}
	WineExec = &Executor{Context: context.Background(), Wine: true}

	if err := os.MkdirAll(RepoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return root
}

// requireGit skips the test when no git binary is installed.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}
