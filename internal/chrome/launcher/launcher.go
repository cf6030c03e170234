// Package launcher provides Chrome browser discovery, launching, and lifecycle management.
package launcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"

	"github.com/tomyan/headlessmocha/internal/log"
)

// ErrChromeNotFound is returned by Launch when no browser binary is available.
var ErrChromeNotFound = errors.New("chrome not found")

// activePortFile is written into the data dir once the debugging endpoint is up.
const activePortFile = "DevToolsActivePort"

// LaunchOptions configures Chrome launching.
type LaunchOptions struct {
	ChromePath string   // Path to Chrome binary (auto-detected if empty)
	Headless   bool     // Run in headless mode
	Args       []string // Extra command line flags, appended after the defaults
	DataDir    string   // User data directory (temp dir created if empty)
	Logger     *log.Logger

	// StartTimeout bounds the wait for the debugging endpoint. Defaults to 30s.
	StartTimeout time.Duration
}

// Instance represents a running Chrome instance.
type Instance struct {
	cmd      *exec.Cmd
	PID      int
	DataDir  string
	WSURL    string // browser websocket endpoint
	ownsData bool   // true if we created the data dir and should clean it up
	logger   *log.Logger
	exited   chan struct{}
	stderr   *tailBuffer
	grace    time.Duration
	stopOnce sync.Once
}

// FindChrome locates Chrome on the system. If chromePath is non-empty and exists,
// it is returned directly. Otherwise, searches PATH and known install locations.
func FindChrome(chromePath string) string {
	if chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath
		}
		return ""
	}

	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// CIFlags returns the sandbox-disabling flags needed on CI machines, or nil
// when no CI indicator is set.
func CIFlags(getenv func(string) string) []string {
	if getenv("CI") == "" && getenv("TRAVIS") == "" {
		return nil
	}
	return []string{"--no-sandbox", "--disable-setuid-sandbox"}
}

func defaultArgs(dataDir string, headless bool) []string {
	args := []string{
		"--disable-gpu",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-translate",
		"--mute-audio",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-default-apps",
		"--remote-debugging-port=0",
		"--user-data-dir=" + dataDir,
	}
	if headless {
		args = append([]string{"--headless", "--hide-scrollbars"}, args...)
	}
	return args
}

// Launch starts a Chrome instance with the given options and waits until its
// debugging endpoint is known. The port is chosen by the browser, so
// concurrent launches never collide.
func Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	chromePath := FindChrome(opts.ChromePath)
	if chromePath == "" {
		if opts.ChromePath != "" {
			return nil, fmt.Errorf("%w at %s", ErrChromeNotFound, opts.ChromePath)
		}
		return nil, ErrChromeNotFound
	}

	ownsData := false
	dataDir := opts.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = os.MkdirTemp("", "headlessmocha-chrome-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		ownsData = true
	} else {
		// A stale file from an earlier run would point at a dead port.
		_ = os.Remove(filepath.Join(dataDir, activePortFile))
	}

	args := append(defaultArgs(dataDir, opts.Headless), opts.Args...)
	args = append(args, "about:blank")

	opts.Logger.Debugf("launcher", "starting %s", shellescape.QuoteCommand(append([]string{chromePath}, args...)))

	stderr := &tailBuffer{max: 4096}
	cmd := exec.Command(chromePath, args...)
	cmd.Stdout = nil
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if ownsData {
			os.RemoveAll(dataDir)
		}
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	inst := &Instance{
		cmd:      cmd,
		PID:      cmd.Process.Pid,
		DataDir:  dataDir,
		ownsData: ownsData,
		logger:   opts.Logger,
		exited:   make(chan struct{}),
		stderr:   stderr,
		grace:    2 * time.Second,
	}
	go func() {
		_ = cmd.Wait()
		close(inst.exited)
	}()

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	wsURL, err := inst.waitForDevToolsURL(ctx, timeout)
	if err != nil {
		inst.grace = 0
		inst.Stop()
		return nil, fmt.Errorf("Chrome failed to start: %w", err)
	}
	inst.WSURL = wsURL

	opts.Logger.Debugf("launcher", "pid %d listening on %s", inst.PID, wsURL)
	return inst, nil
}

// waitForDevToolsURL polls the data dir for the file in which the browser
// records its debugging port and browser target path.
func (inst *Instance) waitForDevToolsURL(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	path := filepath.Join(inst.DataDir, activePortFile)
	for {
		wsURL, err := readDevToolsURL(path)
		if err == nil {
			return wsURL, nil
		}
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errIncomplete) {
			return "", err
		}

		select {
		case <-ticker.C:
		case <-inst.exited:
			return "", fmt.Errorf("browser exited before it was ready: %s", inst.stderr.String())
		case <-deadline.C:
			return "", fmt.Errorf("timeout waiting for %s", path)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

var errIncomplete = errors.New("incomplete")

func readDevToolsURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return parseDevToolsActivePort(data)
}

// parseDevToolsActivePort turns the two-line "port\n/devtools/browser/<id>"
// file into a websocket URL.
func parseDevToolsActivePort(data []byte) (string, error) {
	lines := make([]string, 0, 2)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return "", errIncomplete
	}
	return fmt.Sprintf("ws://127.0.0.1:%s%s", lines[0], lines[1]), nil
}

// Running reports whether the process has not exited yet.
func (inst *Instance) Running() bool {
	select {
	case <-inst.exited:
		return false
	default:
		return true
	}
}

// Stop terminates the Chrome instance and cleans up. It waits briefly for a
// browser that was asked to close to exit by itself, then kills its process
// group, which holds only this browser and its helpers.
// Calling Stop more than once is safe.
func (inst *Instance) Stop() error {
	inst.stopOnce.Do(func() {
		select {
		case <-inst.exited:
		case <-time.After(inst.grace):
			if err := killProcessGroup(inst.cmd); err != nil {
				inst.logger.Warnf("launcher", "killing pid %d: %v", inst.PID, err)
				_ = inst.cmd.Process.Kill()
			}
			<-inst.exited
		}

		if inst.ownsData && inst.DataDir != "" {
			time.Sleep(100 * time.Millisecond)
			if err := os.RemoveAll(inst.DataDir); err != nil {
				inst.logger.Warnf("launcher", "removing %s: %v", inst.DataDir, err)
			}
		}
		inst.logger.Debugf("launcher", "pid %d stopped", inst.PID)
	})
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
