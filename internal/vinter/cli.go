package vinter

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: vinter <command> [arguments]")
	colSuccess.Println("Run 'vinter <command>' for command-specific options")
	fmt.Println()
	colInfo.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"build, b", "[options] <tag>", "Run the full pipeline and produce the installers"},
		{"deps", "[name...]", "Cross-compile the native dependencies (all or a subset)"},
		{"env", "[--refresh]", "Prepare (or restore) just the Wine environment"},
		{"logs", "[stage]", "TUI stage-log viewer, or page one stage's log"},
		{"upload", "[options]", "Publish dist/ artifacts to R2"},
		{"sign", "[options] [file]", "Sign the checksum listing (or a file)"},
		{"verify", "[options] <file>", "Verify a detached signature"},
		{"keys", "generate|show [id]", "Manage release signing keys"},
		{"clean", "[options]", "Remove build output, caches, snapshots"},
		{"init", "", "Write an example configuration file"},
		{"version, --version", "", "Version information"},
	}

	// column width follows the longest usage string
	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		colInfo.Println(c.Desc)
	}
	fmt.Println()
}

func printVersion() {
	colSuccess.Printf("vinter %s (%s) built %s\n", version, arch, buildDate)
}

// fail reports a command error and exits. Usage and unsupported-target
// errors exit with 2, everything else with 1.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, errUsage) || errors.Is(err, errUnsupportedArch) {
		os.Exit(2)
	}
	os.Exit(1)
}

// Main is the CLI entrypoint behind the root main.go shim.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// Two-phase interrupt handling: during a critical section (msiexec or
	// NSIS mutating the Wine drive) the first Ctrl+C only warns; a second
	// one forces exit. Outside critical sections the first Ctrl+C cancels
	// the context so the running subprocess group is killed.
	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					colArrow.Print("\n-> ")
					colError.Printf("An installer is mutating the Wine drive. Press Ctrl+C AGAIN to force exit NOW.\n")

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
					cancel()

					time.Sleep(100 * time.Millisecond)

					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(2 * time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Graceful shutdown timeout. Exiting.")
						os.Exit(0)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	if ctx.Err() != nil {
		return
	}

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	cfg, err := loadConfig(defaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
	}
	initConfig(cfg)

	HostExec = &Executor{Context: ctx, ApplyIdlePriority: UseNice}
	WineExec = &Executor{Context: ctx, Wine: true, ApplyIdlePriority: UseNice}

	var exitCode int

	switch os.Args[1] {
	case "build", "b":
		buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
		var refresh = buildCmd.Bool("refresh-env", false, "Rebuild the Wine environment even when a snapshot exists.")
		var verbose = buildCmd.Bool("v", false, "Mirror stage logs to stdout.")
		var verboseLong = buildCmd.Bool("verbose", false, "Mirror stage logs to stdout.")
		var noStrip = buildCmd.Bool("no-strip", false, "Keep symbols in cross-built binaries.")
		var archShort = buildCmd.String("a", "", "Target architecture (overrides VINTER_ARCH).")
		var archLong = buildCmd.String("arch", "", "Target architecture (overrides VINTER_ARCH).")
		_ = buildCmd.Parse(os.Args[2:])
		Verbose = *verbose || *verboseLong
		if *noStrip {
			WantStrip = false
		}
		if *archLong != "" {
			WinArch = *archLong
		} else if *archShort != "" {
			WinArch = *archShort
		}
		if buildCmd.NArg() != 1 {
			fail(fmt.Errorf("%w: usage: vinter build [options] <tag>", errUsage))
		}
		if err := runBuild(buildCmd.Arg(0), *refresh); err != nil {
			fail(err)
		}

	case "deps":
		depsCmd := flag.NewFlagSet("deps", flag.ExitOnError)
		var verbose = depsCmd.Bool("v", false, "Mirror stage logs to stdout.")
		var verboseLong = depsCmd.Bool("verbose", false, "Mirror stage logs to stdout.")
		_ = depsCmd.Parse(os.Args[2:])
		Verbose = *verbose || *verboseLong
		if err := runDeps(depsCmd.Args()); err != nil {
			fail(err)
		}

	case "env":
		envCmd := flag.NewFlagSet("env", flag.ExitOnError)
		var refresh = envCmd.Bool("refresh", false, "Rebuild even when a snapshot exists.")
		var verbose = envCmd.Bool("v", false, "Mirror stage logs to stdout.")
		var verboseLong = envCmd.Bool("verbose", false, "Mirror stage logs to stdout.")
		_ = envCmd.Parse(os.Args[2:])
		Verbose = *verbose || *verboseLong
		if err := runEnv(*refresh); err != nil {
			fail(err)
		}

	case "logs", "log":
		if err := setupBuildContext(); err != nil {
			fail(err)
		}
		if len(os.Args) >= 3 {
			if err := showStepLog(os.Args[2]); err != nil {
				fail(err)
			}
		} else {
			exitCode = runLogTUI()
		}

	case "upload":
		if err := handleUploadCommand(os.Args[2:], cfg); err != nil {
			fail(fmt.Errorf("upload failed: %w", err))
		}

	case "sign":
		signCmd := flag.NewFlagSet("sign", flag.ExitOnError)
		keyID := signCmd.String("key", defaultReleaseKeyID, "Key id to sign with.")
		_ = signCmd.Parse(os.Args[2:])
		if signCmd.NArg() > 0 {
			err = signFile(signCmd.Arg(0), *keyID)
		} else {
			if err = setupBuildContext(); err == nil {
				err = signChecksums(*keyID)
			}
		}
		if err != nil {
			fail(fmt.Errorf("sign failed: %w", err))
		}

	case "verify":
		verifyCmd := flag.NewFlagSet("verify", flag.ExitOnError)
		keyID := verifyCmd.String("key", defaultReleaseKeyID, "Key id to verify against.")
		_ = verifyCmd.Parse(os.Args[2:])
		if verifyCmd.NArg() != 1 {
			fail(fmt.Errorf("%w: usage: vinter verify [--key id] <file>", errUsage))
		}
		if err := verifyFile(verifyCmd.Arg(0), *keyID); err != nil {
			fail(err)
		}

	case "keys":
		if len(os.Args) < 3 {
			fmt.Println("Usage: vinter keys generate|show [id]")
			exitCode = 1
			break
		}
		id := defaultReleaseKeyID
		if len(os.Args) >= 4 {
			id = os.Args[3]
		}
		switch os.Args[2] {
		case "generate":
			if err := generateKeyPair(id); err != nil {
				fail(err)
			}
		case "show":
			pub, err := loadPublicKey(id)
			if err != nil {
				fail(err)
			}
			colNote.Printf("  %-15s ", id)
			fmt.Printf("%s\n", hex.EncodeToString(pub))
		default:
			fmt.Println("Usage: vinter keys generate|show [id]")
			exitCode = 1
		}

	case "clean":
		if err := handleCleanCommand(os.Args[2:]); err != nil {
			fail(fmt.Errorf("clean failed: %w", err))
		}

	case "init":
		if err := handleInitCommand(); err != nil {
			fail(err)
		}

	case "version", "--version":
		printVersion()

	default:
		printHelp()
		exitCode = 1
	}
	os.Exit(exitCode)
}
