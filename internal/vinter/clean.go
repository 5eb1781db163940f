package vinter

import (
	"flag"
	"fmt"
	"os"
)

// handleCleanCommand implements the 'vinter clean' command. Every target is
// gated behind a confirmation, since the download cache and snapshots are
// expensive to rebuild.
func handleCleanCommand(args []string) error {
	cleanCmd := flag.NewFlagSet("clean", flag.ExitOnError)
	cleanBuild := cleanCmd.Bool("build", false, "Remove the build/ and dist/ working area.")
	cleanCache := cleanCmd.Bool("cache", false, "Remove all cached downloads.")
	cleanSnapshots := cleanCmd.Bool("snapshots", false, "Remove saved environment snapshots.")
	cleanWine := cleanCmd.Bool("wine", false, "Remove the Wine prefix.")
	cleanAll := cleanCmd.Bool("all", false, "Everything above.")

	if err := cleanCmd.Parse(args); err != nil {
		return err // Should not happen with flag.ExitOnError
	}

	if !*cleanBuild && !*cleanCache && !*cleanSnapshots && !*cleanWine && !*cleanAll {
		fmt.Println("Usage: vinter clean [flag]")
		fmt.Println("You must specify what to clean. Use one of the following flags:")
		cleanCmd.PrintDefaults()
		return nil
	}

	if *cleanAll {
		*cleanBuild = true
		*cleanCache = true
		*cleanSnapshots = true
		*cleanWine = true
	}

	if *cleanBuild {
		if err := setupBuildContext(); err != nil {
			return err
		}
		if err := removeTarget("working area", buildDir(), distDir()); err != nil {
			return err
		}
	}
	if *cleanCache {
		if err := removeTarget("download cache", DownloadDir); err != nil {
			return err
		}
	}
	if *cleanSnapshots {
		if err := removeTarget("environment snapshots", SnapshotDir); err != nil {
			return err
		}
	}
	if *cleanWine {
		if err := removeTarget("Wine prefix", WinePrefix); err != nil {
			return err
		}
	}
	return nil
}

func removeTarget(what string, dirs ...string) error {
	colArrow.Print("-> ")
	cPrintf(colWarn, "This will permanently delete the %s (%v).\n", what, dirs)
	if !askForConfirmation(colArrow, "Are you sure you want to proceed?") {
		colArrow.Print("-> ")
		colSuccess.Printf("Cleanup of %s canceled.\n", what)
		return nil
	}
	for _, dir := range dirs {
		debugf("Removing %s\n", dir)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Removed %s.\n", what)
	return nil
}
