package vinter

import (
	"io"
)

// setupBuildContext runs every gate that must pass before the pipeline is
// allowed to touch the filesystem: target validation, repository resolution,
// arch-derived defaults, and git's safe.directory exception.
func setupBuildContext() error {
	if err := validateArch(WinArch); err != nil {
		return err
	}
	dir, err := resolveRepoDir()
	if err != nil {
		return err
	}
	RepoDir = dir
	applyArchDefaults()
	return gitSafeDirectory(RepoDir)
}

// runBuild drives the whole pipeline for one tag: wipe, checkout, native
// dependencies, Wine environment, packaging. Strictly sequential, aborting
// at the first failed stage.
func runBuild(tag string, refresh bool) error {
	if err := setupBuildContext(); err != nil {
		return err
	}
	if err := wipeWorkDirs(); err != nil {
		return err
	}
	resetStepCounter()

	var info *checkoutInfo
	err := runStep("checkout", func(log io.Writer) error {
		var err error
		info, err = checkoutSource(tag, log)
		return err
	})
	if err != nil {
		return err
	}
	stepf("building %s %s for %s (%.12s)\n", Package, info.Version, WinArch, info.Commit)

	if err := buildDependencies(); err != nil {
		return err
	}
	if err := prepareWineEnv(info.Commit, refresh); err != nil {
		return err
	}
	if err := runStep("native-libs", copyNativeLibs); err != nil {
		return err
	}
	if err := packageApp(info); err != nil {
		return err
	}

	colSuccess.Printf("Build of %s %s complete, artifacts in %s\n", Package, info.Version, distDir())
	return nil
}

// runDeps builds the native dependencies, all of them or the named subset in
// canonical order, leaving previous build output in place.
func runDeps(names []string) error {
	if err := setupBuildContext(); err != nil {
		return err
	}
	if err := ensureWorkDirs(); err != nil {
		return err
	}
	resetStepCounter()
	return buildDependencies(names...)
}

// runEnv prepares (or restores) just the Wine environment.
func runEnv(refresh bool) error {
	if err := setupBuildContext(); err != nil {
		return err
	}
	if err := ensureWorkDirs(); err != nil {
		return err
	}
	resetStepCounter()
	// Outside a build there is no checked-out tag to derive the bootloader
	// tag from; use the source repository's HEAD when it has one.
	commit, err := gitOutput(RepoDir, "rev-parse", "HEAD")
	if err != nil {
		commit = ""
	}
	if err := prepareWineEnv(commit, refresh); err != nil {
		return err
	}
	colSuccess.Println("Environment ready")
	return nil
}
