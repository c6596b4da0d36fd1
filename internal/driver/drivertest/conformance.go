package drivertest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/consolecap/internal/driver"
)

// ConformancePage is the markup Conformance serves.
const ConformancePage = `<!doctype html>
<html><body>
<div data-qa-list>
  <div data-qa-row><span data-qa-cell>alpha</span></div>
  <div data-qa-row><span data-qa-cell>beta</span></div>
</div>
<input data-qa-input value="">
<button data-qa-button style="width:80px;height:30px"
  onclick="document.querySelector('[data-qa-out]').textContent = 'clicked'; this.setAttribute('aria-pressed', 'true')">Go</button>
<div data-qa-out></div>
<div data-qa-hidden style="display:none">hidden</div>
</body></html>`

// Conformance checks a real browser backend against the driver.Driver
// contract using a page served from a local test server.
func Conformance(t *testing.T, d driver.Driver) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(ConformancePage))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	require.NoError(t, d.Navigate(ctx, srv.URL+"/volumes"))
	u, err := d.URL(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "/volumes"), "url %q", u)

	t.Run("count", func(t *testing.T) {
		n, err := d.Count(ctx, nil, "[data-qa-row]")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = d.Count(ctx, driver.Ref{{Selector: "[data-qa-row]", Index: 1}}, "[data-qa-cell]")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = d.Count(ctx, nil, "[data-qa-absent]")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("scoped text", func(t *testing.T) {
		ref := driver.Ref{{Selector: "[data-qa-row]", Index: 1}}.Child("[data-qa-cell]", 0)
		text, err := d.Text(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "beta", text)
	})

	t.Run("click", func(t *testing.T) {
		button := driver.Ref{{Selector: "[data-qa-button]", Index: 0}}
		require.NoError(t, d.Click(ctx, button))

		text, err := d.Text(ctx, driver.Ref{{Selector: "[data-qa-out]", Index: 0}})
		require.NoError(t, err)
		assert.Equal(t, "clicked", text)

		v, ok, err := d.Attribute(ctx, button, "aria-pressed")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "true", v)

		_, ok, err = d.Attribute(ctx, button, "aria-disabled")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set value", func(t *testing.T) {
		input := driver.Ref{{Selector: "[data-qa-input]", Index: 0}}
		require.NoError(t, d.SetValue(ctx, input, "ASD1700000000"))
		v, ok, err := d.Attribute(ctx, input, "value")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ASD1700000000", v)
	})

	t.Run("visible", func(t *testing.T) {
		v, err := d.Visible(ctx, driver.Ref{{Selector: "[data-qa-button]", Index: 0}})
		require.NoError(t, err)
		assert.True(t, v)

		v, err = d.Visible(ctx, driver.Ref{{Selector: "[data-qa-hidden]", Index: 0}})
		require.NoError(t, err)
		assert.False(t, v)
	})

	t.Run("stale", func(t *testing.T) {
		gone := driver.Ref{{Selector: "[data-qa-row]", Index: 5}}
		_, err := d.Text(ctx, gone)
		assert.ErrorIs(t, err, driver.ErrStale)
		_, err = d.Count(ctx, gone, "[data-qa-cell]")
		assert.ErrorIs(t, err, driver.ErrStale)
		assert.ErrorIs(t, d.Click(ctx, gone), driver.ErrStale)
	})

	t.Run("screenshot", func(t *testing.T) {
		data, err := d.Screenshot(ctx)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "not a PNG")
	})
}
