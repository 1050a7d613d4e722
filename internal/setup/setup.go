// Package setup resolves a usable Chrome/Chromium binary for the browser
// launcher: an explicit override first, then well-known names on PATH,
// then a handful of OS-specific default install locations.
package setup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// candidateNames are the binary names probed on PATH, in order, covering
// the package names Chrome/Chromium ships under across distros.
var candidateNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

// defaultLocationsFn is a var, not a plain func, so tests can swap in a
// fixed list of paths instead of depending on the OS under test.
var defaultLocationsFn = defaultLocationsForOS

// defaultLocationsForOS lists OS-specific install paths checked when
// nothing is found on PATH. Checked in order; the first existing path
// wins.
func defaultLocationsForOS() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files\Chromium\Application\chrome.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	}
}

// CacheDir returns the user-level directory a downloaded Chrome binary
// would be cached under, expanding "~" via the user's home directory.
func CacheDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "scalpeldep", "chrome"), nil
}

// Resolve finds a usable Chrome/Chromium binary. explicitPath, when
// non-empty, is trusted without existence checks (the caller set
// --chrome-path deliberately; chromedp will report a clear error itself
// if it's wrong). Otherwise PATH is searched for well-known binary names,
// then a list of OS-specific default install locations. Returns false
// when none of those are found, meaning a binary must be downloaded.
func Resolve(explicitPath string, logger *zap.Logger) (string, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if explicitPath != "" {
		return explicitPath, true
	}

	for _, name := range candidateNames {
		if path, err := exec.LookPath(name); err == nil {
			logger.Debug("found browser binary on PATH", zap.String("name", name), zap.String("path", path))
			return path, true
		}
	}

	for _, path := range defaultLocationsFn() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			logger.Debug("found browser binary at default location", zap.String("path", path))
			return path, true
		}
	}

	return "", false
}

// CachedBinary returns the path a prior download would have placed a
// binary at, and whether it currently exists there.
func CachedBinary() (string, bool) {
	dir, err := CacheDir()
	if err != nil {
		return "", false
	}
	name := "chrome"
	if runtime.GOOS == "windows" {
		name = "chrome.exe"
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Ensure resolves a usable binary, checking the download cache as a final
// fallback before reporting that a download is required. It never
// performs the download itself — that is the setup command's job, kept
// separate so a library caller can decide how to react to "not found"
// without triggering a network fetch as a side effect of resolution.
func Ensure(explicitPath string, logger *zap.Logger) (string, error) {
	if path, ok := Resolve(explicitPath, logger); ok {
		return path, nil
	}
	if path, ok := CachedBinary(); ok {
		return path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		dir = "~/.cache/scalpeldep/chrome"
	}
	return "", fmt.Errorf("no Chrome/Chromium binary found on PATH or in default install locations; run `scalpeldep setup` to download one into %s", dir)
}
