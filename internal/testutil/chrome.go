// Package testutil starts real browsers for integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/tomyan/consolecap/internal/chrome"
	"github.com/tomyan/consolecap/internal/chrome/launcher"
)

// Chrome launches a headless Chrome for the test and returns its debugging
// port. The test is skipped in -short mode or when no Chrome is installed.
// Chrome is stopped when the test ends.
func Chrome(t testing.TB) int {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if launcher.FindChrome("") == "" {
		t.Skip("Chrome not found on this system")
	}

	inst, err := launcher.Launch(context.Background(), launcher.Options{
		Headless: true,
		Logger:   zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("launching Chrome: %v", err)
	}
	t.Cleanup(func() { inst.Stop() })
	return inst.Port
}

// Tab launches Chrome and returns a Tab on its first page.
func Tab(t testing.TB) *chrome.Tab {
	t.Helper()
	port := Chrome(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := chrome.Connect(ctx, "localhost", port, chrome.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("connecting to Chrome: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	tab, err := c.FirstTab(ctx)
	if err != nil {
		t.Fatalf("opening tab: %v", err)
	}
	return tab
}
