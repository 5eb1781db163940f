package vinter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsiComponents(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"core", "dev", "exe", "lib", "pip", "tools"}, msiComponents)
}

func TestPyHome(t *testing.T) {
	setTestGlobals(t)

	assert.Equal(t, "c:/python3.9.13", pyHome())
	PyVersion = "3.11.9"
	assert.Equal(t, "c:/python3.11.9", pyHome())
}

func TestDrivePath(t *testing.T) {
	setTestGlobals(t)
	WinePrefix = "/home/ci/.vinter/wine-x86_64"

	assert.Equal(t, "/home/ci/.vinter/wine-x86_64/drive_c", drivePath())
	assert.Equal(t, "/home/ci/.vinter/wine-x86_64/drive_c/tmp/tor.exe", drivePath("tmp", "tor.exe"))
}

func TestWinePipCommand(t *testing.T) {
	setTestGlobals(t)

	cmd := winePip("--upgrade", "pip==24.0")
	assert.Equal(t, []string{
		"wine", "c:/python3.9.13/python.exe", "-OO", "-B",
		"-m", "pip", "install", "--no-build-isolation", "--no-warn-script-location",
		"--upgrade", "pip==24.0",
	}, cmd.Args)
}

func TestTagBootloader(t *testing.T) {
	setTestGlobals(t)

	mkTree := func() string {
		src := filepath.Join(t.TempDir(), "pyinstaller")
		main := filepath.Join(src, "bootloader", "src", "pyi_main.c")
		require.NoError(t, os.MkdirAll(filepath.Dir(main), 0o755))
		require.NoError(t, os.WriteFile(main, []byte("int pyi_main(void);\n"), 0o644))
		return src
	}
	readMain := func(src string) string {
		data, err := os.ReadFile(filepath.Join(src, "bootloader", "src", "pyi_main.c"))
		require.NoError(t, err)
		return string(data)
	}

	commit := "dbd41db16a0e91b2566820898a3ab2eb90d60432"
	first := mkTree()
	require.NoError(t, tagBootloader(first, commit))
	assert.Contains(t, readMain(first), "tagged by Electron-Cash@"+commit)

	// The marker depends only on package and built commit, never on any
	// state of the host: a second tree tagged with the same commit is
	// byte-identical.
	second := mkTree()
	require.NoError(t, tagBootloader(second, commit))
	assert.Equal(t, readMain(first), readMain(second))

	// Without a commit (env prepared outside a build) the package name
	// alone is used.
	bare := mkTree()
	require.NoError(t, tagBootloader(bare, ""))
	assert.Contains(t, readMain(bare), `tagged by Electron-Cash"`)
	assert.NotContains(t, readMain(bare), "Electron-Cash@")
}

func TestEnvSnapshotKey(t *testing.T) {
	setTestGlobals(t)

	key := envSnapshotKey()
	require.Len(t, key, 16)
	assert.Equal(t, key, envSnapshotKey(), "key is stable for fixed pins")

	PyVersion = "3.11.9"
	assert.NotEqual(t, key, envSnapshotKey(), "a runtime bump invalidates old snapshots")

	PyVersion = "3.9.13"
	assert.Equal(t, key, envSnapshotKey())

	WinArch = "i686"
	assert.NotEqual(t, key, envSnapshotKey(), "snapshots are arch-specific")
}
