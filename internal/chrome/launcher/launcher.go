// Package launcher finds and starts a Chrome for test runs and stops it
// again afterwards.
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrChromeNotFound is returned when no Chrome binary can be located.
var ErrChromeNotFound = errors.New("Chrome not found")

// DefaultWindowSize matches the viewport the console layouts are tested at.
const DefaultWindowSize = "1920,1080"

// Options configures a launch.
type Options struct {
	ChromePath string // auto-detected if empty
	Port       int    // a free port is picked if zero
	Headless   bool
	DataDir    string // a temp dir owned by the instance if empty
	WindowSize string // "w,h"; DefaultWindowSize if empty
	ExtraArgs  []string
	Logger     *zap.Logger
}

// Instance is a running Chrome.
type Instance struct {
	cmd      *exec.Cmd
	logger   *zap.Logger
	Port     int
	PID      int
	DataDir  string
	ownsData bool
}

// Names searched for on PATH, then well-known install paths per GOOS.
var (
	binaryNames  = []string{"google-chrome", "chromium", "chromium-browser"}
	installPaths = map[string][]string{
		"darwin": {
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		},
		"linux": {
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		},
		"windows": {
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		},
	}
)

// FindChrome returns the Chrome binary to launch, or "" if there is none.
// An explicit chromePath is used only if it exists.
func FindChrome(chromePath string) string {
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}
	if chromePath != "" {
		if exists(chromePath) {
			return chromePath
		}
		return ""
	}
	for _, name := range binaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	for _, p := range installPaths[runtime.GOOS] {
		if exists(p) {
			return p
		}
	}
	return ""
}

// FreePort asks the kernel for an unused TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// IsPortOpen reports whether host:port accepts TCP connections.
func IsPortOpen(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitForPort polls until host:port accepts connections or ctx ends.
func WaitForPort(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	err := retry.Do(ctx, retry.NewConstant(50*time.Millisecond), func(ctx context.Context) error {
		if !IsPortOpen(host, port) {
			return retry.RetryableError(fmt.Errorf("%s not listening", addr))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", addr, err)
	}
	return nil
}

// Args returns the command line for a launch with opts and dataDir.
func Args(opts Options, dataDir string) []string {
	size := opts.WindowSize
	if size == "" {
		size = DefaultWindowSize
	}
	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-extensions",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-translate",
		"--mute-audio",
		"--no-first-run",
		"--disable-default-apps",
		"--window-size=" + size,
		fmt.Sprintf("--remote-debugging-port=%d", opts.Port),
		"--user-data-dir=" + dataDir,
	}
	if opts.Headless {
		args = append([]string{"--headless=new"}, args...)
	}
	args = append(args, opts.ExtraArgs...)
	return append(args, "about:blank")
}

// Launch starts Chrome and waits until its debugging port is open.
func Launch(ctx context.Context, opts Options) (*Instance, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chromePath := FindChrome(opts.ChromePath)
	if chromePath == "" {
		return nil, ErrChromeNotFound
	}

	if opts.Port == 0 {
		port, err := FreePort()
		if err != nil {
			return nil, err
		}
		opts.Port = port
	}

	ownsData := false
	dataDir := opts.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = os.MkdirTemp("", "consolecap-chrome-*")
		if err != nil {
			return nil, fmt.Errorf("creating Chrome data dir: %w", err)
		}
		ownsData = true
	}

	cmd := exec.Command(chromePath, Args(opts, dataDir)...)
	if err := cmd.Start(); err != nil {
		if ownsData {
			os.RemoveAll(dataDir)
		}
		return nil, fmt.Errorf("starting %s: %w", chromePath, err)
	}

	inst := &Instance{
		cmd:      cmd,
		logger:   logger,
		Port:     opts.Port,
		PID:      cmd.Process.Pid,
		DataDir:  dataDir,
		ownsData: ownsData,
	}
	logger.Info("chrome started",
		zap.String("path", chromePath),
		zap.Int("port", inst.Port),
		zap.Int("pid", inst.PID),
		zap.Bool("headless", opts.Headless))

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := WaitForPort(waitCtx, "localhost", opts.Port); err != nil {
		inst.Stop()
		return nil, fmt.Errorf("Chrome on port %d never opened: %w", opts.Port, err)
	}
	return inst, nil
}

// ChromeInfo is the /json/version document of a running Chrome.
type ChromeInfo struct {
	Browser  string `json:"Browser"`
	Protocol string `json:"Protocol-Version"`
	V8       string `json:"V8-Version"`
	WebKit   string `json:"WebKit-Version"`

	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DetectRunning returns version info for a Chrome listening on host:port.
func DetectRunning(ctx context.Context, host string, port int) (*ChromeInfo, error) {
	url := fmt.Sprintf("http://%s/json/version", net.JoinHostPort(host, strconv.Itoa(port)))
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Chrome not reachable at %s:%d: %w", host, port, err)
	}
	defer resp.Body.Close()

	var info ChromeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("parsing version info: %w", err)
	}
	return &info, nil
}

// Stop kills Chrome and removes its data dir if Launch created it. It is
// safe to call more than once.
func (inst *Instance) Stop() error {
	if cmd := inst.cmd; cmd != nil && cmd.Process != nil {
		inst.cmd = nil
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		// Renderers are not children of the process group on Linux; they are
		// found by the data dir on their command line.
		if inst.DataDir != "" && runtime.GOOS != "windows" {
			_ = exec.Command("pkill", "-9", "-f", inst.DataDir).Run()
		}
		inst.logger.Info("chrome stopped", zap.Int("pid", inst.PID))
	}
	if !inst.ownsData || inst.DataDir == "" {
		return nil
	}
	// Chrome may still be flushing the profile when Kill returns.
	time.Sleep(100 * time.Millisecond)
	if err := os.RemoveAll(inst.DataDir); err != nil {
		return fmt.Errorf("removing %s: %w", inst.DataDir, err)
	}
	inst.DataDir = ""
	return nil
}
