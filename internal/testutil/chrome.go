// Package testutil provides helpers for tests that drive a real browser.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tomyan/headlessmocha/internal/chrome/launcher"
)

// RequireChrome returns the path of a Chrome binary, skipping the test when
// none is installed or when running with -short. HEADLESSMOCHA_CHROME
// overrides discovery.
func RequireChrome(t testing.TB) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	path := launcher.FindChrome(os.Getenv("HEADLESSMOCHA_CHROME"))
	if path == "" {
		t.Skip("Chrome not found on this system")
	}
	return path
}

// SandboxArgs returns the flags needed to run Chrome as root or inside a
// container, where the setuid sandbox is unavailable.
func SandboxArgs() []string {
	if os.Geteuid() == 0 {
		return []string{"--no-sandbox", "--disable-setuid-sandbox"}
	}
	return nil
}

// WriteFiles creates files under a fresh temporary directory and returns the
// directory. Keys are slash-separated paths relative to it.
func WriteFiles(t testing.TB, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return dir
}
