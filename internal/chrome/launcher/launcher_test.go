package launcher

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFindChrome(t *testing.T) {
	t.Parallel()

	path := FindChrome("")
	if path == "" {
		t.Skip("Chrome not found on this system")
	}
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFindChromeExplicitPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/bin/sh", FindChrome("/bin/sh"))
	assert.Empty(t, FindChrome("/nonexistent/chrome"))
}

func TestFreePortAndIsPortOpen(t *testing.T) {
	t.Parallel()

	port, err := FreePort()
	require.NoError(t, err)
	assert.False(t, IsPortOpen("localhost", port))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	assert.True(t, IsPortOpen("127.0.0.1", l.Addr().(*net.TCPAddr).Port))
}

func TestWaitForPortTimeout(t *testing.T) {
	t.Parallel()

	port, err := FreePort()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = WaitForPort(ctx, "localhost", port)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestArgs(t *testing.T) {
	t.Parallel()

	args := Args(Options{Port: 9333, Headless: true, ExtraArgs: []string{"--lang=en-US"}}, "/tmp/data")
	assert.Equal(t, "--headless=new", args[0])
	assert.Equal(t, "about:blank", args[len(args)-1])
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--remote-debugging-port=9333")
	assert.Contains(t, joined, "--user-data-dir=/tmp/data")
	assert.Contains(t, joined, "--window-size="+DefaultWindowSize)
	assert.Contains(t, joined, "--lang=en-US")

	headed := Args(Options{Port: 9333, WindowSize: "1280,800"}, "/tmp/data")
	assert.NotContains(t, strings.Join(headed, " "), "--headless")
	assert.Contains(t, headed, "--window-size=1280,800")
}

func TestLaunchInvalidChromePath(t *testing.T) {
	t.Parallel()

	_, err := Launch(context.Background(), Options{ChromePath: "/nonexistent/chrome", Headless: true})
	assert.ErrorIs(t, err, ErrChromeNotFound)
}

func TestLaunchAndStop(t *testing.T) {
	if testing.Short() {
		t.Skip("launches Chrome")
	}
	if FindChrome("") == "" {
		t.Skip("Chrome not found on this system")
	}

	inst, err := Launch(context.Background(), Options{Headless: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer inst.Stop()

	assert.True(t, IsPortOpen("localhost", inst.Port))
	info, err := DetectRunning(context.Background(), "localhost", inst.Port)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Browser)

	dataDir := inst.DataDir
	require.NoError(t, inst.Stop())
	time.Sleep(200 * time.Millisecond)
	assert.False(t, IsPortOpen("localhost", inst.Port))
	assert.NoDirExists(t, dataDir)
}

func TestLaunchKeepsCallerDataDir(t *testing.T) {
	if testing.Short() {
		t.Skip("launches Chrome")
	}
	if FindChrome("") == "" {
		t.Skip("Chrome not found on this system")
	}

	dataDir := t.TempDir()
	inst, err := Launch(context.Background(), Options{Headless: true, DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, inst.Stop())
	assert.DirExists(t, dataDir)
}
