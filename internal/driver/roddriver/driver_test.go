package roddriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tomyan/consolecap/internal/chrome/launcher"
	"github.com/tomyan/consolecap/internal/driver/drivertest"
)

func TestConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if launcher.FindChrome("") == "" {
		t.Skip("Chrome not found on this system")
	}

	ctx := context.Background()
	inst, err := launcher.Launch(ctx, launcher.Options{Headless: true})
	require.NoError(t, err)
	t.Cleanup(func() { inst.Stop() })

	info, err := launcher.DetectRunning(ctx, "localhost", inst.Port)
	require.NoError(t, err)

	d, err := New(ctx, Options{ControlURL: info.WebSocketDebuggerURL, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	drivertest.Conformance(t, d)
}
