package vinter

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// isCriticalAtomic is 1 while an interruption-sensitive step runs
// (msiexec installs, the NSIS run) and 0 otherwise.
var isCriticalAtomic atomic.Int32

// Global variables, populated by initConfig.
var (
	Package      string // artifact base name, e.g. "Electron-Cash"
	RepoDir      string // source repository being built
	RemoteURL    string // clone URL when not building from a checkout
	WinArch      string // x86_64 or i686
	PyVersion    string // Windows Python runtime version
	PyMirror     string // Python distribution mirror
	KeyringPath  string // armored keyring for runtime signatures
	WinePrefix   string // emulated Windows drive
	CacheDir     string
	DownloadDir  string // CacheDir/downloads
	SnapshotDir  string // CacheDir/env
	TripletHost  string // cross toolchain triplet
	TripletBuild string // build machine triplet
	WantStrip    bool
	ShallowClone bool
	UseNice      bool // run subprocesses at idle priority
	Debug        bool
	Verbose      bool
	tmpDir       string

	pyOfficialURL       = "https://www.python.org/ftp/python"
	pyMirrorMessageOnce sync.Once

	version   = "dev" //default version; overridden at build time
	arch      = runtime.GOARCH
	buildDate = "unknown" // overridden at build time

	errUnsupportedArch = errors.New("unsupported target architecture")
	errUsage           = errors.New("usage error")

	// Global executors (declared, to be assigned in Main)
	HostExec *Executor
	WineExec *Executor
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
