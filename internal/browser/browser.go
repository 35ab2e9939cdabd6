// Package browser opens account pages in a private browser window, so
// cookies from one account never leak into another login session.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNoBrowser means no known browser executable could be located.
var ErrNoBrowser = errors.New("no browser found")

// candidates lists known browser executables in preference order.
func candidates() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"chrome.exe", "msedge.exe", "firefox.exe", "brave.exe"}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Firefox.app/Contents/MacOS/firefox",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	default:
		return []string{"google-chrome", "chromium", "chromium-browser", "firefox", "brave-browser"}
	}
}

// Detect returns the first usable browser executable.
func Detect() (string, error) {
	for _, c := range candidates() {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", ErrNoBrowser
}

// privateArgs maps a browser executable to its private-window invocation.
// A non-empty dataDir isolates the session's profile so cookies never mix
// between accounts opened side by side.
func privateArgs(browser, url, dataDir string) []string {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(browser), ".exe"))
	switch {
	case strings.Contains(name, "firefox"):
		if dataDir != "" {
			return []string{"-profile", dataDir, "--private-window", url}
		}
		return []string{"--private-window", url}
	case strings.Contains(name, "edge") || strings.Contains(name, "msedge"):
		if dataDir != "" {
			return []string{"--inprivate", "--user-data-dir=" + dataDir, url}
		}
		return []string{"--inprivate", url}
	default:
		// Chromium family.
		if dataDir != "" {
			return []string{"--incognito", "--user-data-dir=" + dataDir, url}
		}
		return []string{"--incognito", url}
	}
}

// Open starts a private browser window at url. An empty browser means
// auto-detect; an empty dataDir shares the default profile. The browser
// process is not tracked or waited on beyond reaping.
func Open(browser, url, dataDir string) error {
	if url == "" {
		return errors.New("browser: empty url")
	}
	if browser == "" {
		detected, err := Detect()
		if err != nil {
			return err
		}
		browser = detected
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o750); err != nil {
			return fmt.Errorf("browser profile dir: %w", err)
		}
	}
	cmd := exec.Command(browser, privateArgs(browser, url, dataDir)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start browser %s: %w", browser, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
