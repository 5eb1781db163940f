package vinter

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Native dependencies cross-compiled with mingw before the app itself is
// packaged. Versions and digests are pinned; bumping one means editing the
// pin here on purpose.
const (
	secpRepo   = "https://github.com/Bitcoin-ABC/secp256k1.git"
	secpCommit = "dbd41db16a0e91b2566820898a3ab2eb90d60432"

	zlibVersion = "1.2.13"
	zlibURL     = "https://zlib.net/fossils/zlib-%s.tar.gz"
	zlibSHA256  = "b3a24de97a8fdbc835b9833169501030b8977031bcb54b3b3ac13740f846ab30"

	opensslVersion = "1.1.1w"
	opensslURL     = "https://www.openssl.org/source/openssl-%s.tar.gz"
	opensslSHA256  = "cf3098950cb4d853ad95c0841f1f9c6d3dc102dccfcacd521d93925208b76ac8"

	libeventVersion = "2.1.12-stable"
	libeventURL     = "https://github.com/libevent/libevent/releases/download/release-%s/libevent-%s.tar.gz"
	libeventSHA256  = "92e6de1be9ec176428fd2367677e61ceffc2ee1cb119035037a27d346b0403bb"

	torVersion = "0.4.7.13"
	torURL     = "https://dist.torproject.org/tor-%s.tar.gz"
	torSHA256  = "2079172cce034556f110048e26083ce9bea751f3154b0ad2809751815b11ea9d"
)

type depBuild struct {
	name  string
	build func(log io.Writer) error
}

// depBuilds returns the native builds in dependency order: tor links against
// the three libraries built before it.
func depBuilds() []depBuild {
	return []depBuild{
		{"secp256k1", buildSecp256k1},
		{"openssl", buildOpenSSL},
		{"zlib", buildZlib},
		{"libevent", buildLibevent},
		{"tor", buildTor},
	}
}

// buildDependencies runs the native builds strictly in order, stopping at
// the first failure. With names given only that subset runs, still in
// canonical order.
func buildDependencies(names ...string) error {
	builds, err := selectDepBuilds(names)
	if err != nil {
		return err
	}
	for _, d := range builds {
		if err := runStep("dep-"+d.name, d.build); err != nil {
			return err
		}
	}
	return nil
}

// selectDepBuilds resolves requested dependency names against the canonical
// order. Unknown names are a usage error.
func selectDepBuilds(names []string) ([]depBuild, error) {
	all := depBuilds()
	if len(names) == 0 {
		return all, nil
	}

	known := make([]string, 0, len(all))
	for _, d := range all {
		known = append(known, d.name)
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if !slices.Contains(known, n) {
			return nil, fmt.Errorf("%w: unknown dependency %q (known: %s)",
				errUsage, n, strings.Join(known, ", "))
		}
		wanted[n] = true
	}

	out := make([]depBuild, 0, len(wanted))
	for _, d := range all {
		if wanted[d.name] {
			out = append(out, d)
		}
	}
	return out, nil
}

func cmdAt(dir, name string, args ...string) *exec.Cmd {
	c := exec.Command(name, args...)
	c.Dir = dir
	return c
}

func makeJobs() string {
	return fmt.Sprintf("-j%d", runtime.NumCPU())
}

// fetchVerified downloads url into the cache and checks it against the
// pinned digest before handing the path back.
func fetchVerified(url, sha string) (string, error) {
	path, err := fetchCached(url, downloadOptions{})
	if err != nil {
		return "", err
	}
	if err := verifySHA256(path, sha); err != nil {
		return "", err
	}
	return path, nil
}

// fetchDepSource downloads a pinned tarball and unpacks it under build/.
func fetchDepSource(url, sha, dirName string) (string, error) {
	path, err := fetchVerified(url, sha)
	if err != nil {
		return "", err
	}
	src := filepath.Join(buildDir(), dirName)
	if err := os.RemoveAll(src); err != nil {
		return "", err
	}
	if err := os.MkdirAll(src, 0o755); err != nil {
		return "", err
	}
	if err := extractArchive(path, src); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}
	return src, nil
}

// stageArtifact copies a freshly built file into the deps prefix, failing
// loudly when the build did not produce it.
func stageArtifact(src, destDir string) error {
	if !fileExists(src) {
		return fmt.Errorf("expected build artifact %s is missing", src)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return copyFile(src, filepath.Join(destDir, filepath.Base(src)))
}

func buildSecp256k1(log io.Writer) error {
	src := filepath.Join(buildDir(), "secp256k1")
	if err := os.RemoveAll(src); err != nil {
		return err
	}
	if err := clonePinned(secpRepo, secpCommit, src, log); err != nil {
		return err
	}
	if err := run(HostExec, log, cmdAt(src, "./autogen.sh")); err != nil {
		return fmt.Errorf("autogen failed: %w", err)
	}
	cfg := cmdAt(src, "./configure",
		"--host="+TripletHost,
		"--build="+TripletBuild,
		"--prefix="+prefixDir(),
		"--enable-module-recovery",
		"--enable-experimental",
		"--enable-module-ecdh",
		"--enable-module-schnorr",
		"--with-bignum=no",
		"--disable-jni",
		"--disable-tests",
		"--disable-static",
		"--enable-shared",
	)
	if err := run(HostExec, log, cfg); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}
	if err := run(HostExec, log, cmdAt(src, "make", makeJobs())); err != nil {
		return fmt.Errorf("make failed: %w", err)
	}
	return stageArtifact(filepath.Join(src, ".libs", "libsecp256k1-0.dll"), filepath.Join(prefixDir(), "bin"))
}

func buildOpenSSL(log io.Writer) error {
	src, err := fetchDepSource(fmt.Sprintf(opensslURL, opensslVersion), opensslSHA256, "openssl-"+opensslVersion)
	if err != nil {
		return err
	}
	cfg := cmdAt(src, "./Configure",
		archTable[WinArch].OpenSSLTarget,
		"--cross-compile-prefix="+TripletHost+"-",
		"--prefix="+prefixDir(),
		"no-shared", "no-dso", "no-zlib",
	)
	if err := run(HostExec, log, cfg); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}
	if err := run(HostExec, log, cmdAt(src, "make", makeJobs())); err != nil {
		return fmt.Errorf("make failed: %w", err)
	}
	// install_sw skips the man pages, which take longer than the build.
	if err := run(HostExec, log, cmdAt(src, "make", "install_sw")); err != nil {
		return fmt.Errorf("make install_sw failed: %w", err)
	}
	return nil
}

func buildZlib(log io.Writer) error {
	src, err := fetchDepSource(fmt.Sprintf(zlibURL, zlibVersion), zlibSHA256, "zlib-"+zlibVersion)
	if err != nil {
		return err
	}
	mk := cmdAt(src, "make", "-f", "win32/Makefile.gcc", makeJobs(),
		"PREFIX="+TripletHost+"-", "SHARED_MODE=1")
	if err := run(HostExec, log, mk); err != nil {
		return fmt.Errorf("make failed: %w", err)
	}
	install := cmdAt(src, "make", "-f", "win32/Makefile.gcc", "install",
		"PREFIX="+TripletHost+"-", "SHARED_MODE=1",
		"DESTDIR="+prefixDir()+"/",
		"INCLUDE_PATH=include", "LIBRARY_PATH=lib", "BINARY_PATH=bin")
	if err := run(HostExec, log, install); err != nil {
		return fmt.Errorf("make install failed: %w", err)
	}
	return stageArtifact(filepath.Join(src, "zlib1.dll"), filepath.Join(prefixDir(), "bin"))
}

func buildLibevent(log io.Writer) error {
	src, err := fetchDepSource(fmt.Sprintf(libeventURL, libeventVersion, libeventVersion), libeventSHA256, "libevent-"+libeventVersion)
	if err != nil {
		return err
	}
	if err := run(HostExec, log, cmdAt(src, "./autogen.sh")); err != nil {
		return fmt.Errorf("autogen failed: %w", err)
	}
	cfg := cmdAt(src, "./configure",
		"--host="+TripletHost,
		"--build="+TripletBuild,
		"--prefix="+prefixDir(),
		"--disable-shared",
		"--enable-static",
		"--with-pic",
		"--disable-samples",
		"--disable-openssl",
	)
	if err := run(HostExec, log, cfg); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}
	if err := run(HostExec, log, cmdAt(src, "make", makeJobs())); err != nil {
		return fmt.Errorf("make failed: %w", err)
	}
	if err := run(HostExec, log, cmdAt(src, "make", "install")); err != nil {
		return fmt.Errorf("make install failed: %w", err)
	}
	return nil
}

func buildTor(log io.Writer) error {
	src, err := fetchDepSource(fmt.Sprintf(torURL, torVersion), torSHA256, "tor-"+torVersion)
	if err != nil {
		return err
	}
	cfg := cmdAt(src, "./configure",
		"--host="+TripletHost,
		"--build="+TripletBuild,
		"--prefix="+prefixDir(),
		"--enable-static-libevent", "--with-libevent-dir="+prefixDir(),
		"--enable-static-openssl", "--with-openssl-dir="+prefixDir(),
		"--enable-static-zlib", "--with-zlib-dir="+prefixDir(),
		"--disable-system-torrc",
		"--disable-systemd",
		"--disable-lzma",
		"--disable-zstd",
		"--disable-seccomp",
		"--disable-asciidoc",
		"--disable-manpage",
		"--disable-html-manual",
		"--disable-unittests",
		"--disable-tool-name-check",
	)
	if err := run(HostExec, log, cfg); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}
	if err := run(HostExec, log, cmdAt(src, "make", makeJobs())); err != nil {
		return fmt.Errorf("make failed: %w", err)
	}
	torExe := filepath.Join(src, "src", "app", "tor.exe")
	if WantStrip {
		if err := stripBinary(torExe, log); err != nil {
			return err
		}
	}
	return stageArtifact(torExe, filepath.Join(prefixDir(), "bin"))
}
