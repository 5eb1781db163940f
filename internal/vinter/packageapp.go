package vinter

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// artifactName forms the published artifact name, embedding version and
// target architecture: <package>-<version>-<arch><variant>.exe.
func artifactName(version, variant string) string {
	return fmt.Sprintf("%s-%s-%s%s.exe", Package, version, WinArch, variant)
}

// appDriveName is the directory name the source copy gets inside drive_c.
func appDriveName() string { return strings.ToLower(Package) }

func appDriveDir() string { return drivePath(appDriveName()) }

func buildWineDir() string {
	return filepath.Join(appDriveDir(), "contrib", "build-wine")
}

// frozenDistDir is where the freeze tool and the installer compiler write
// their output, inside the drive-side source copy.
func frozenDistDir() string {
	return filepath.Join(buildWineDir(), "dist")
}

// packageApp turns the checked-out source plus the prepared environment into
// the three published executables.
func packageApp(info *checkoutInfo) error {
	stages := []struct {
		name string
		fn   func(log io.Writer) error
	}{
		{"locales", func(log io.Writer) error { compileLocales(srcDir(), log); return nil }},
		{"timestamps-source", func(log io.Writer) error { return normalizeTimestamps(srcDir()) }},
		{"python-deps", installPythonDeps},
		{"install-app", installApp},
		{"timestamps-runtime", func(log io.Writer) error { return normalizeTimestamps(drivePath()) }},
		{"freeze", func(log io.Writer) error { return freezeApp(info.Version, log) }},
		{"timestamps-dist", func(log io.Writer) error { return normalizeTimestamps(frozenDistDir()) }},
		{"installer", func(log io.Writer) error { return buildInstaller(info.Version, log) }},
		{"checksums", func(log io.Writer) error { return writeChecksums(distDir()) }},
	}
	for _, s := range stages {
		if err := runStep(s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// installPythonDeps installs the two pinned dependency sets into the
// prefix's Python: the general set, then the hardware-wallet set held down
// by the extra build constraints.
func installPythonDeps(log io.Writer) error {
	reqDir := filepath.Join(srcDir(), "contrib", "deterministic-build")

	general := winePip("--no-dependencies", "-r", filepath.Join(reqDir, "requirements.txt"))
	general.Dir = srcDir()
	if err := run(WineExec, log, general); err != nil {
		return fmt.Errorf("requirements install failed: %w", err)
	}

	hardware := winePip("--no-dependencies",
		"-r", filepath.Join(reqDir, "requirements-hw.txt"),
		"-c", filepath.Join(reqDir, "build-constraints.txt"))
	hardware.Dir = srcDir()
	if err := run(WineExec, log, hardware); err != nil {
		return fmt.Errorf("hardware requirements install failed: %w", err)
	}
	return nil
}

// installApp copies the checkout into drive_c and pip-installs it from
// there, so the freeze spec sees Windows paths throughout.
func installApp(log io.Writer) error {
	dest := appDriveDir()
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := copyDir(srcDir(), dest); err != nil {
		return err
	}
	if err := run(WineExec, log, winePip("--no-dependencies", "c:/"+appDriveName())); err != nil {
		return fmt.Errorf("app install failed: %w", err)
	}
	return nil
}

// freezeApp runs the freeze tool against the versioned spec file and renames
// both outputs in place so the installer script can reference them by their
// final, architecture-qualified names.
func freezeApp(version string, log io.Writer) error {
	if WantStrip {
		if err := stripTree(drivePath("tmp"), log); err != nil {
			return err
		}
	}

	name := fmt.Sprintf("%s-%s", appDriveName(), version)
	cmd := exec.Command("wine", pyHome()+"/scripts/pyinstaller.exe",
		"--noconfirm", "--ascii", "--clean",
		"--name", name,
		"-w", "deterministic.spec",
	)
	cmd.Dir = buildWineDir()
	cmd.Env = append(os.Environ(),
		"PYTHONHASHSEED=22",
		"PYTHONDONTWRITEBYTECODE=1",
	)
	if err := run(WineExec, log, cmd); err != nil {
		return fmt.Errorf("freeze failed: %w", err)
	}

	renames := []struct{ from, to string }{
		{name + ".exe", artifactName(version, "")},
		{name + "-portable.exe", artifactName(version, "-portable")},
	}
	for _, r := range renames {
		src := filepath.Join(frozenDistDir(), r.from)
		if !fileExists(src) {
			return fmt.Errorf("freeze produced no %s", r.from)
		}
		fmt.Fprintf(log, "renaming %s -> %s\n", r.from, r.to)
		if err := os.Rename(src, filepath.Join(frozenDistDir(), r.to)); err != nil {
			return err
		}
	}
	return nil
}

// makensisPath locates the installer compiler inside the prefix. NSIS is a
// 32-bit program, so a 64-bit prefix files it under Program Files (x86).
func makensisPath() string {
	pf := "Program Files (x86)"
	if archTable[WinArch].WineArch == "win32" {
		pf = "Program Files"
	}
	return drivePath(pf, "NSIS", "makensis.exe")
}

// buildInstaller compiles the setup executable from the repository's
// installer script and collects all three artifacts into dist/.
func buildInstaller(version string, log io.Writer) error {
	cmd := exec.Command("wine", makensisPath(),
		"/DPRODUCT_VERSION="+version,
		appDriveName()+".nsi",
	)
	cmd.Dir = buildWineDir()
	if err := run(WineExec, log, cmd); err != nil {
		return fmt.Errorf("makensis failed: %w", err)
	}

	// The installer script emits an unversioned setup executable; stamp it
	// the way the frozen outputs were stamped.
	raw := filepath.Join(frozenDistDir(), appDriveName()+"-setup.exe")
	if !fileExists(raw) {
		return fmt.Errorf("makensis produced no %s", filepath.Base(raw))
	}
	setup := filepath.Join(frozenDistDir(), artifactName(version, "-setup"))
	fmt.Fprintf(log, "renaming %s -> %s\n", filepath.Base(raw), filepath.Base(setup))
	if err := os.Rename(raw, setup); err != nil {
		return err
	}

	if err := os.MkdirAll(distDir(), 0o755); err != nil {
		return err
	}
	for _, variant := range []string{"", "-portable", "-setup"} {
		name := artifactName(version, variant)
		dest := filepath.Join(distDir(), name)
		if err := moveFile(filepath.Join(frozenDistDir(), name), dest); err != nil {
			return err
		}
		if err := os.Chtimes(dest, refInstant, refInstant); err != nil {
			return err
		}
	}
	return nil
}
