package vinter

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Pins for everything installed into the Wine prefix. The Python MSI
// components carry detached GPG signatures instead of digests; the keyring
// they are checked against is part of the repository being built.
const (
	pipVersion = "24.0"

	pyinstallerRepo   = "https://github.com/pyinstaller/pyinstaller.git"
	pyinstallerCommit = "80ee4d613ecf75a1226b960a560ee01459e65ddb"

	nsisURL    = "https://downloads.sourceforge.net/project/nsis/NSIS%203/3.06.1/nsis-3.06.1-setup.exe"
	nsisSHA256 = "f60488a676308079bfdf6845dc7114cfd4bbff47b66be4db827b89bb8d7fdc52"

	libusbRepo   = "https://github.com/libusb/libusb.git"
	libusbCommit = "4239bc3a50014b8e6a5a2a59df1fff3b7469543b"
)

// msiComponents are the pieces of the official CPython installer we need.
// Anything not listed (docs, tcl/tk, launcher) stays out of the prefix.
var msiComponents = []string{"core", "dev", "exe", "lib", "pip", "tools"}

func pyHome() string { return "c:/python" + PyVersion }

// drivePath resolves a path inside the emulated Windows drive on the host
// filesystem.
func drivePath(elem ...string) string {
	return filepath.Join(append([]string{WinePrefix, "drive_c"}, elem...)...)
}

// winePy builds a command running the prefix's Python. -OO strips
// docstrings, -B keeps .pyc files out of the tree we later freeze.
func winePy(args ...string) *exec.Cmd {
	base := []string{pyHome() + "/python.exe", "-OO", "-B"}
	return exec.Command("wine", append(base, args...)...)
}

func winePip(args ...string) *exec.Cmd {
	base := []string{"-m", "pip", "install", "--no-build-isolation", "--no-warn-script-location"}
	return winePy(append(base, args...)...)
}

// envSnapshotKey derives the snapshot cache key from every pin the snapshot
// actually contains. Changing any of them invalidates old snapshots
// automatically. The bootloader is not part of the snapshot (its tag embeds
// the commit being built), so its pin does not enter the key.
func envSnapshotKey() string {
	pins := strings.Join([]string{
		WinArch, PyVersion, pipVersion, nsisSHA256, libusbCommit,
	}, "|")
	return hashString(pins)[:16]
}

// prepareWineEnv brings the Wine prefix to the exact state the packaging
// stage expects: pinned Python, NSIS, libusb, and a bootloader compiled from
// source. The commit-independent installs are snapshotted under the pin key
// so later runs restore them instead of reinstalling; the bootloader carries
// the built commit in its tag and is rebuilt on every preparation, so a
// restored snapshot never smuggles in a stale tag.
func prepareWineEnv(commit string, refresh bool) error {
	snap := filepath.Join(SnapshotDir, "wine-env-"+envSnapshotKey()+".tar.zst")

	restored := false
	if !refresh && fileExists(snap) {
		err := runStep("env-restore", func(log io.Writer) error {
			fmt.Fprintf(log, "restoring %s\n", snap)
			return restoreEnvSnapshot(snap)
		})
		if err == nil {
			restored = true
		} else {
			cPrintf(colWarn, "Warning: snapshot restore failed, rebuilding the environment: %v\n", err)
			tryRemoveCachedFile(snap)
		}
	}

	if !restored {
		if err := os.RemoveAll(WinePrefix); err != nil {
			return err
		}
		if err := os.MkdirAll(WinePrefix, 0o755); err != nil {
			return err
		}

		steps := []struct {
			name string
			fn   func(io.Writer) error
		}{
			{"wine-boot", bootWinePrefix},
			{"python", installPython},
			{"nsis", installNSIS},
			{"libusb", buildLibusb},
		}
		for _, s := range steps {
			if err := runStep(s.name, s.fn); err != nil {
				return err
			}
		}

		if err := runStep("env-snapshot", func(log io.Writer) error {
			if err := saveEnvSnapshot(snap); err != nil {
				cPrintf(colWarn, "Warning: snapshot save failed: %v\n", err)
				return nil
			}
			fmt.Fprintf(log, "saved %s\n", snap)
			return nil
		}); err != nil {
			return err
		}
	}

	return runStep("pyinstaller", func(log io.Writer) error {
		return installPyInstaller(commit, log)
	})
}

func bootWinePrefix(log io.Writer) error {
	if err := run(WineExec, log, exec.Command("wine", "wineboot", "--init")); err != nil {
		return fmt.Errorf("wineboot failed: %w", err)
	}
	// wait until the registry is fully written before msiexec touches it
	if err := run(WineExec, log, exec.Command("wineserver", "-w")); err != nil {
		return fmt.Errorf("wineserver wait failed: %w", err)
	}
	return os.MkdirAll(drivePath("tmp"), 0o755)
}

// installPython downloads the pinned CPython MSI components, checks each
// detached signature against the pinned keyring, and only then lets msiexec
// run them. A component failing verification is evicted from the cache and
// the build stops before anything is installed.
func installPython(log io.Writer) error {
	verifier, err := loadKeyring(KeyringPath)
	if err != nil {
		return err
	}

	base := fmt.Sprintf("%s/%s/%s", pyOfficialURL, PyVersion, archTable[WinArch].InstallerDir)
	for _, comp := range msiComponents {
		msiURL := fmt.Sprintf("%s/%s.msi", base, comp)
		msi, err := fetchCached(msiURL, downloadOptions{})
		if err != nil {
			return err
		}
		sig, err := fetchCached(msiURL+".asc", downloadOptions{Quiet: true})
		if err != nil {
			return err
		}
		if err := verifier.verifyDetached(msi, sig); err != nil {
			tryRemoveCachedFile(msi)
			return fmt.Errorf("signature check of %s.msi failed: %w", comp, err)
		}
		fmt.Fprintf(log, "verified %s.msi\n", comp)

		err = criticalSection(func() error {
			return run(WineExec, log, exec.Command("wine", "msiexec", "/i", msi, "/qb", "TARGETDIR="+pyHome()))
		})
		if err != nil {
			return fmt.Errorf("install of %s.msi failed: %w", comp, err)
		}
	}

	if err := run(WineExec, log, winePip("--upgrade", "pip=="+pipVersion)); err != nil {
		return fmt.Errorf("pip upgrade failed: %w", err)
	}
	return nil
}

// installPyInstaller compiles the bootloader from pinned source with the
// cross toolchain and installs the result into the prefix. The prebuilt
// bootloaders shipped in the tree are deleted first so a broken compile
// cannot silently fall back to them. commit is the revision of the checkout
// being built and ends up in the bootloader tag.
func installPyInstaller(commit string, log io.Writer) error {
	src := filepath.Join(buildDir(), "pyinstaller")
	if err := os.RemoveAll(src); err != nil {
		return err
	}
	if err := clonePinned(pyinstallerRepo, pyinstallerCommit, src, log); err != nil {
		return err
	}

	prebuilt, _ := filepath.Glob(filepath.Join(src, "PyInstaller", "bootloader", "Windows-*", "run*.exe"))
	for _, p := range prebuilt {
		if err := os.Remove(p); err != nil {
			return err
		}
	}

	if err := tagBootloader(src, commit); err != nil {
		return err
	}

	waf := cmdAt(filepath.Join(src, "bootloader"), "python3", "./waf", "all",
		"CC="+TripletHost+"-gcc",
		"CFLAGS=-static")
	if err := run(HostExec, log, waf); err != nil {
		return fmt.Errorf("bootloader compile failed: %w", err)
	}

	runw := filepath.Join(src, "PyInstaller", "bootloader", archTable[WinArch].BootloaderDir, "runw.exe")
	if !fileExists(runw) {
		return fmt.Errorf("bootloader compile produced no %s", runw)
	}

	if err := run(WineExec, log, winePip("--no-dependencies", src)); err != nil {
		return fmt.Errorf("pyinstaller install failed: %w", err)
	}
	return nil
}

// tagBootloader appends a per-build marker to the bootloader source. Stock
// bootloaders are a common antivirus false-positive signature; ours must not
// hash like everyone else's. The marker is a function of the package and the
// commit being built only, so two hosts building the same tag produce the
// same bootloader bytes.
func tagBootloader(src, commit string) error {
	tag := Package
	if commit != "" {
		tag += "@" + commit
	}
	f, err := os.OpenFile(filepath.Join(src, "bootloader", "src", "pyi_main.c"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\nconst char *vinter_tag = \"tagged by %s\";\n", tag)
	return err
}

func installNSIS(log io.Writer) error {
	setup, err := fetchVerified(nsisURL, nsisSHA256)
	if err != nil {
		return err
	}
	return criticalSection(func() error {
		if err := run(WineExec, log, exec.Command("wine", setup, "/S")); err != nil {
			return fmt.Errorf("nsis install failed: %w", err)
		}
		return nil
	})
}

// buildLibusb cross-compiles libusb at the pinned commit and drops the dll
// inside the prefix, where the freeze spec picks it up.
func buildLibusb(log io.Writer) error {
	src := filepath.Join(buildDir(), "libusb")
	if err := os.RemoveAll(src); err != nil {
		return err
	}
	if err := clonePinned(libusbRepo, libusbCommit, src, log); err != nil {
		return err
	}
	if err := run(HostExec, log, cmdAt(src, "./bootstrap.sh")); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	cfg := cmdAt(src, "./configure",
		"--host="+TripletHost,
		"--build="+TripletBuild,
	)
	if err := run(HostExec, log, cfg); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}
	if err := run(HostExec, log, cmdAt(src, "make", makeJobs())); err != nil {
		return fmt.Errorf("make failed: %w", err)
	}
	dll := filepath.Join(src, "libusb", ".libs", "libusb-1.0.dll")
	return stageArtifact(dll, drivePath("tmp"))
}

// copyNativeLibs stages the cross-built dependency artifacts on the Windows
// side of the prefix.
func copyNativeLibs(log io.Writer) error {
	destDir := drivePath("tmp")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, name := range []string{"libsecp256k1-0.dll", "zlib1.dll", "tor.exe"} {
		src := filepath.Join(prefixDir(), "bin", name)
		if !fileExists(src) {
			return fmt.Errorf("native library %s has not been built", name)
		}
		fmt.Fprintf(log, "copying %s\n", name)
		if err := copyFile(src, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func saveEnvSnapshot(snapPath string) error {
	if err := os.MkdirAll(SnapshotDir, 0o755); err != nil {
		return err
	}
	tmp := snapPath + ".part"
	if err := createTarZst(WinePrefix, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, snapPath)
}

func restoreEnvSnapshot(snapPath string) error {
	if err := os.RemoveAll(WinePrefix); err != nil {
		return err
	}
	if err := os.MkdirAll(WinePrefix, 0o755); err != nil {
		return err
	}
	return extractTarZst(snapPath, WinePrefix)
}
