package chrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tomyan/consolecap/internal/driver"
)

// fakeBrowser speaks just enough of the protocol to drive a Tab.
type fakeBrowser struct {
	srv *httptest.Server

	mu      sync.Mutex
	eval    func(expr string) (value interface{}, exception string)
	methods []string
	mouse   []map[string]interface{}
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{
		eval: func(string) (interface{}, string) { return nil, "" },
	}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"webSocketDebuggerUrl": "ws://" + r.Host + "/devtools/browser/fake",
		})
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			for _, msg := range fb.reply(req) {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	})
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) hostPort(t *testing.T) (string, int) {
	host, port, err := net.SplitHostPort(strings.TrimPrefix(fb.srv.URL, "http://"))
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func (fb *fakeBrowser) setEval(fn func(expr string) (interface{}, string)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.eval = fn
}

func (fb *fakeBrowser) reply(req frame) []map[string]interface{} {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.methods = append(fb.methods, req.Method)

	result := func(v interface{}) map[string]interface{} {
		return map[string]interface{}{"id": req.ID, "sessionId": req.SessionID, "result": v}
	}

	switch req.Method {
	case "Target.getTargets":
		return []map[string]interface{}{result(map[string]interface{}{
			"targetInfos": []map[string]string{
				{"targetId": "W1", "type": "service_worker"},
				{"targetId": "T1", "type": "page", "url": "about:blank"},
			},
		})}
	case "Target.attachToTarget":
		return []map[string]interface{}{result(map[string]string{"sessionId": "S1"})}
	case "Page.navigate":
		var p struct {
			URL string `json:"url"`
		}
		json.Unmarshal(req.Params, &p)
		if strings.Contains(p.URL, "unreachable") {
			return []map[string]interface{}{result(map[string]string{"frameId": "F", "errorText": "net::ERR_NAME_NOT_RESOLVED"})}
		}
		return []map[string]interface{}{
			result(map[string]string{"frameId": "F", "loaderId": "L"}),
			{"method": "Page.loadEventFired", "sessionId": req.SessionID, "params": map[string]float64{"timestamp": 1}},
		}
	case "Runtime.evaluate":
		var p struct {
			Expression string `json:"expression"`
		}
		json.Unmarshal(req.Params, &p)
		v, exc := fb.eval(p.Expression)
		if exc != "" {
			return []map[string]interface{}{result(map[string]interface{}{
				"result":           map[string]string{"type": "object"},
				"exceptionDetails": map[string]interface{}{"text": "Uncaught", "exception": map[string]string{"description": exc}},
			})}
		}
		return []map[string]interface{}{result(map[string]interface{}{
			"result": map[string]interface{}{"type": "object", "value": v},
		})}
	case "Input.dispatchMouseEvent":
		var p map[string]interface{}
		json.Unmarshal(req.Params, &p)
		fb.mouse = append(fb.mouse, p)
		return []map[string]interface{}{result(map[string]string{})}
	case "Page.captureScreenshot":
		return []map[string]interface{}{result(map[string]string{
			"data": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		})}
	case "Page.enable", "Runtime.enable", "Target.detachFromTarget", "Target.closeTarget":
		return []map[string]interface{}{result(map[string]string{})}
	}
	return []map[string]interface{}{{
		"id":    req.ID,
		"error": map[string]interface{}{"code": -32601, "message": "'" + req.Method + "' wasn't found"},
	}}
}

func openTab(t *testing.T, fb *fakeBrowser) *Tab {
	t.Helper()
	host, port := fb.hostPort(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, host, port, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	tab, err := c.FirstTab(ctx)
	require.NoError(t, err)
	return tab
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFirstTabPicksPageTarget(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	assert.Equal(t, "T1", tab.TargetID())
}

func TestNavigateWaitsForLoad(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	ctx := testCtx(t)

	require.NoError(t, tab.Navigate(ctx, "http://console.local/volumes"))

	err := tab.Navigate(ctx, "http://unreachable.local/")
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
}

func TestCountAndStaleScope(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	ctx := testCtx(t)

	fb.setEval(func(string) (interface{}, string) { return 3, "" })
	n, err := tab.Count(ctx, nil, "[data-qa-volume-cell]")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	fb.setEval(func(string) (interface{}, string) { return -1, "" })
	_, err = tab.Count(ctx, driver.Ref{{Selector: "[data-qa-row]", Index: 4}}, "td")
	assert.ErrorIs(t, err, driver.ErrStale)
}

func TestElementScripts(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	ctx := testCtx(t)
	ref := driver.Ref{{Selector: "[data-qa-toast]", Index: 0}}

	fb.setEval(func(expr string) (interface{}, string) {
		switch {
		case strings.Contains(expr, "innerText"):
			return map[string]interface{}{"value": "Volume created"}, ""
		case strings.Contains(expr, "hasAttribute"):
			return map[string]interface{}{"value": map[string]interface{}{"present": true, "value": "true"}}, ""
		case strings.Contains(expr, "getComputedStyle"):
			return map[string]interface{}{"value": true}, ""
		case strings.Contains(expr, "dispatchEvent"):
			return map[string]interface{}{"value": "typed"}, ""
		}
		return nil, "unexpected expression"
	})

	text, err := tab.Text(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Volume created", text)

	v, ok, err := tab.Attribute(ctx, ref, "aria-selected")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	visible, err := tab.Visible(ctx, ref)
	require.NoError(t, err)
	assert.True(t, visible)

	assert.NoError(t, tab.SetValue(ctx, ref, "typed"))
}

func TestStaleElement(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	fb.setEval(func(string) (interface{}, string) {
		return map[string]interface{}{"stale": true}, ""
	})

	_, err := tab.Text(testCtx(t), driver.Ref{{Selector: "[data-qa-gone]", Index: 0}})
	assert.ErrorIs(t, err, driver.ErrStale)
}

func TestClickDispatchesAtCenter(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	fb.setEval(func(string) (interface{}, string) {
		return map[string]interface{}{"value": map[string]float64{"x": 40, "y": 25}}, ""
	})

	require.NoError(t, tab.Click(testCtx(t), driver.Ref{{Selector: "[data-qa-submit]", Index: 0}}))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.Len(t, fb.mouse, 3)
	assert.Equal(t, "mouseMoved", fb.mouse[0]["type"])
	assert.Equal(t, "mousePressed", fb.mouse[1]["type"])
	assert.Equal(t, "mouseReleased", fb.mouse[2]["type"])
	assert.Equal(t, 40.0, fb.mouse[2]["x"])
	assert.Equal(t, 25.0, fb.mouse[2]["y"])
	assert.Equal(t, "left", fb.mouse[2]["button"])
}

func TestEvalException(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	fb.setEval(func(string) (interface{}, string) { return nil, "SyntaxError: bad selector" })

	_, err := tab.URL(testCtx(t))
	var exc *ExceptionError
	require.True(t, errors.As(err, &exc))
	assert.Contains(t, exc.Text, "bad selector")
}

func TestScreenshot(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)

	data, err := tab.Screenshot(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestProtocolError(t *testing.T) {
	fb := newFakeBrowser(t)
	host, port := fb.hostPort(t)
	ctx := testCtx(t)
	c, err := Connect(ctx, host, port)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Call(ctx, "Nope.method", nil)
	assert.ErrorIs(t, err, ErrProtocolError)

	require.NoError(t, c.Close())
	_, err = c.Call(ctx, "Browser.getVersion", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestTargets(t *testing.T) {
	fb := newFakeBrowser(t)
	host, port := fb.hostPort(t)
	ctx := testCtx(t)
	c, err := Connect(ctx, host, port)
	require.NoError(t, err)
	defer c.Close()

	all, err := c.Targets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	workers, err := c.Targets(ctx, "service_worker")
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "W1", workers[0].ID)
}

func TestCloseDetachesSessions(t *testing.T) {
	fb := newFakeBrowser(t)
	tab := openTab(t, fb)
	require.NoError(t, tab.c.Close())

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Contains(t, fb.methods, "Target.detachFromTarget")

	_, err := tab.URL(testCtx(t))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
