package vinter

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// defaultConfigPath returns ~/.config/vinter/vinter.conf, honoring VINTER_CONFIG.
func defaultConfigPath() string {
	if p := os.Getenv("VINTER_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/vinter.conf"
	}
	return filepath.Join(home, ".config", "vinter", "vinter.conf")
}

// Load the config file and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge VINTER_* env overrides
	mergeEnvOverrides(cfg)

	// Ensure TMPDIR has a default
	if tmp := cfg.Values["TMPDIR"]; tmp == "" {
		cfg.Values["TMPDIR"] = "/tmp"
	}

	return cfg, nil
}

// Merge VINTER_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "VINTER_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}

	// Also import TMPDIR from the environment if present, without overwriting
	// an explicit config file value
	if tmp := os.Getenv("TMPDIR"); tmp != "" {
		if _, exists := cfg.Values["TMPDIR"]; !exists {
			cfg.Values["TMPDIR"] = tmp
		}
	}
}

func initConfig(cfg *Config) {
	Package = cfg.Values["VINTER_PACKAGE"]
	if Package == "" {
		Package = "Electron-Cash"
	}

	RepoDir = cfg.Values["VINTER_REPO"]
	RemoteURL = cfg.Values["VINTER_REMOTE"]

	WinArch = cfg.Values["VINTER_ARCH"]
	if WinArch == "" {
		WinArch = "x86_64"
	}

	PyVersion = cfg.Values["VINTER_PYTHON_VERSION"]
	if PyVersion == "" {
		PyVersion = "3.9.13"
	}

	PyMirror = strings.TrimRight(cfg.Values["VINTER_PYTHON_MIRROR"], "/")
	if PyMirror == "" {
		PyMirror = pyOfficialURL
	} else if PyMirror != pyOfficialURL {
		debugf("=> Using Python mirror from config: %s\n", PyMirror)
	}

	KeyringPath = cfg.Values["VINTER_KEYRING"]

	home, _ := os.UserHomeDir()

	WinePrefix = cfg.Values["VINTER_WINEPREFIX"]
	if WinePrefix == "" {
		WinePrefix = filepath.Join(home, ".vinter", "wine-"+WinArch)
	}

	CacheDir = cfg.Values["VINTER_CACHE_DIR"]
	if CacheDir == "" {
		CacheDir = filepath.Join(home, ".cache", "vinter")
	}
	DownloadDir = filepath.Join(CacheDir, "downloads")
	SnapshotDir = filepath.Join(CacheDir, "env")

	TripletBuild = cfg.Values["VINTER_GCC_TRIPLET_BUILD"]
	if TripletBuild == "" {
		TripletBuild = "x86_64-pc-linux-gnu"
	}
	// The host triplet default depends on the target arch; resolved in preflight
	// once the arch is validated.
	TripletHost = cfg.Values["VINTER_GCC_TRIPLET_HOST"]

	WantStrip = cfg.Values["VINTER_STRIP"] != "0"
	ShallowClone = cfg.Values["VINTER_SHALLOW"] != "0"
	UseNice = cfg.Values["VINTER_NICE"] == "1"
	Debug = cfg.Values["VINTER_DEBUG"] == "1"

	tmpDir = cfg.Values["TMPDIR"]
	if tmpDir == "" {
		tmpDir = "/tmp"
	}
}
