package vinter

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// stepNum numbers step logs in execution order.
var stepNum int

func resetStepCounter() { stepNum = 0 }

// runStep runs one pipeline stage, teeing every subprocess it spawns into a
// numbered log under build/logs. The whole run is fail-fast: the returned
// error names the stage, and its raw log is kept for inspection. Logs of
// finished stages are xz-compressed.
func runStep(name string, fn func(log io.Writer) error) error {
	stepNum++
	logPath := filepath.Join(logDir(), fmt.Sprintf("%02d-%s.log", stepNum, name))
	if err := os.MkdirAll(logDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log %s: %w", logPath, err)
	}

	var log io.Writer = logFile
	if Verbose {
		log = io.MultiWriter(os.Stdout, logFile)
	}

	stepf("%s\n", name)
	if err := fn(log); err != nil {
		logFile.Close()
		colArrow.Print("-> ")
		colError.Printf("%s failed (log: %s)\n", name, logPath)
		return fmt.Errorf("%s failed: %w", name, err)
	}
	logFile.Close()

	if err := compressXZ(logPath, logPath+".xz"); err != nil {
		debugf("log compression failed for %s: %v\n", logPath, err)
	}
	return nil
}

// run executes cmd through exe with its output attached to the step log.
func run(exe *Executor, log io.Writer, cmd *exec.Cmd) error {
	cmd.Stdout = log
	cmd.Stderr = log
	return exe.Run(cmd)
}

// criticalSection marks work that must not be interrupted half-way (an
// msiexec or NSIS install mutating the Wine drive). The signal handler
// requires a second Ctrl+C to abort while the flag is set.
func criticalSection(fn func() error) error {
	isCriticalAtomic.Store(1)
	defer isCriticalAtomic.Store(0)
	return fn()
}
