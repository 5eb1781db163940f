package vinter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Executor provides a consistent interface for executing external commands,
// abstracting away the emulated-Windows environment plumbing.
type Executor struct {
	Context           context.Context // The context to use for cancellation
	Wine              bool            // Wine injects WINEPREFIX/WINEARCH/WINEDEBUG into the child environment.
	ApplyIdlePriority bool            // Apply nice -n 19 to every command (VINTER_NICE)
}

// wineEnviron returns the environment variables every command that touches
// the emulated Windows drive must carry. The arch is validated in preflight
// before any Wine executor runs.
func wineEnviron() []string {
	env := []string{
		"WINEPREFIX=" + WinePrefix,
		"WINEARCH=" + archTable[WinArch].WineArch,
		"WINEDEBUG=-all",
	}
	if tmpDir != "" {
		// Installer scratch churn goes to the configured temp dir, not the
		// Wine drive.
		env = append(env, "TMPDIR="+tmpDir)
	}
	return env
}

// Run executes the given command, injecting the Wine environment when needed.
// It wires up stdio, isolates the child in its own process group for cleanup,
// and kills the whole group if the context is cancelled.
func (e *Executor) Run(cmd *exec.Cmd) error {
	// --- Phase 0: wire up stdio ---
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// --- Phase 1: build the final command ---
	basePath := cmd.Path
	baseArgs := cmd.Args[1:]

	// Apply IDLE/NICENESS wrapper if requested
	if e.ApplyIdlePriority {
		baseArgs = append([]string{"-n", "19", basePath}, baseArgs...)
		basePath = "nice"
	}

	finalCmd := exec.CommandContext(e.Context, basePath, baseArgs...)
	finalCmd.Dir = cmd.Dir

	// preserve or inherit the environment
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	if e.Wine {
		finalCmd.Env = append(finalCmd.Env, wineEnviron()...)
	}

	// carry over stdio
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	// --- Phase 2: isolate process group for context-based cleanup ---
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// --- Phase 3: start and watch for cancel ---
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	// Cancellation kills the entire process group, not just the child:
	// configure scripts and make spawn their own trees.
	pgid := finalCmd.Process.Pid

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-e.Context.Done():
			syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	// --- Phase 4: wait and return ---
	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", e.Context.Err())
		}
		return waitErr
	}
	return nil
}
