package vinter

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed assets/vinter.conf
var embeddedAssets embed.FS

// handleInitCommand writes the example configuration to the default config
// path. An existing config is never touched.
func handleInitCommand() error {
	path := defaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	data, err := embeddedAssets.ReadFile("assets/vinter.conf")
	if err != nil {
		return fmt.Errorf("embedded config not found: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Wrote example configuration to %s\n", path)
	return nil
}
