package chrome

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tomyan/consolecap/internal/driver"
)

// Tab is one page target driven through the client. It implements
// driver.Driver.
type Tab struct {
	c       *Client
	target  string
	session string
}

var _ driver.Driver = (*Tab)(nil)

// Tab attaches to target and enables the Page and Runtime domains.
func (c *Client) Tab(ctx context.Context, target string) (*Tab, error) {
	session, err := c.attach(ctx, target)
	if err != nil {
		return nil, err
	}
	t := &Tab{c: c, target: target, session: session}
	for _, method := range []string{"Page.enable", "Runtime.enable"} {
		if err := t.do(ctx, method, nil, nil); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FirstTab returns a Tab on the first open page, opening one if the
// browser has none.
func (c *Client) FirstTab(ctx context.Context) (*Tab, error) {
	pages, err := c.Targets(ctx, "page")
	if err != nil {
		return nil, err
	}
	if len(pages) > 0 {
		return c.Tab(ctx, pages[0].ID)
	}
	id, err := c.createPage(ctx)
	if err != nil {
		return nil, err
	}
	return c.Tab(ctx, id)
}

// TargetID returns the page target this tab drives.
func (t *Tab) TargetID() string {
	return t.target
}

func (t *Tab) do(ctx context.Context, method string, params, out interface{}) error {
	return t.c.call(ctx, t.session, method, params, out)
}

// Navigate loads url and waits for the load event. Same-document
// navigations return as soon as Chrome accepts them.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	loaded := t.c.listen(t.session, "Page.loadEventFired")
	defer t.c.unlisten(loaded)

	var resp struct {
		LoaderID  string `json:"loaderId"`
		ErrorText string `json:"errorText"`
	}
	if err := t.do(ctx, "Page.navigate", map[string]string{"url": url}, &resp); err != nil {
		return err
	}
	if resp.ErrorText != "" {
		return fmt.Errorf("navigating to %s: %s", url, resp.ErrorText)
	}
	if resp.LoaderID == "" {
		return nil
	}

	select {
	case <-loaded.ch:
		return nil
	case <-t.c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("waiting for load of %s: %w", url, ctx.Err())
	}
}

func (t *Tab) URL(ctx context.Context) (string, error) {
	var u string
	if err := t.eval(ctx, "document.location.href", &u); err != nil {
		return "", err
	}
	return u, nil
}

func (t *Tab) Count(ctx context.Context, scope driver.Ref, selector string) (int, error) {
	var n int
	if err := t.eval(ctx, driver.CountJS(scope, selector), &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("scope %s: %w", scope, driver.ErrStale)
	}
	return n, nil
}

// Click presses the left button at the element's center.
func (t *Tab) Click(ctx context.Context, ref driver.Ref) error {
	var p driver.Point
	if err := t.script(ctx, driver.Script(ref, driver.CenterBody), &p); err != nil {
		return err
	}
	for _, typ := range []string{"mouseMoved", "mousePressed", "mouseReleased"} {
		ev := map[string]interface{}{"type": typ, "x": p.X, "y": p.Y}
		if typ != "mouseMoved" {
			ev["button"] = "left"
			ev["clickCount"] = 1
		}
		if err := t.do(ctx, "Input.dispatchMouseEvent", ev, nil); err != nil {
			return fmt.Errorf("clicking %s: %w", ref, err)
		}
	}
	return nil
}

func (t *Tab) SetValue(ctx context.Context, ref driver.Ref, value string) error {
	return t.script(ctx, driver.SetValueScript(ref, value), nil)
}

func (t *Tab) Text(ctx context.Context, ref driver.Ref) (string, error) {
	var s string
	if err := t.script(ctx, driver.Script(ref, driver.TextBody), &s); err != nil {
		return "", err
	}
	return s, nil
}

func (t *Tab) Attribute(ctx context.Context, ref driver.Ref, name string) (string, bool, error) {
	var res driver.AttributeResult
	if err := t.script(ctx, driver.AttributeScript(ref, name), &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (t *Tab) Visible(ctx context.Context, ref driver.Ref) (bool, error) {
	var v bool
	if err := t.script(ctx, driver.Script(ref, driver.VisibleBody), &v); err != nil {
		return false, err
	}
	return v, nil
}

func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var resp struct {
		Data string `json:"data"`
	}
	if err := t.do(ctx, "Page.captureScreenshot", map[string]string{"format": "png"}, &resp); err != nil {
		return nil, err
	}
	png, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	return png, nil
}

// evaluate returns the JSON value of expression, awaiting promises.
func (t *Tab) evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	var resp struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	params := map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}
	if err := t.do(ctx, "Runtime.evaluate", params, &resp); err != nil {
		return nil, err
	}
	if d := resp.ExceptionDetails; d != nil {
		if d.Exception != nil && d.Exception.Description != "" {
			return nil, &ExceptionError{Text: d.Exception.Description}
		}
		return nil, &ExceptionError{Text: d.Text}
	}
	if len(resp.Result.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Result.Value, nil
}

func (t *Tab) eval(ctx context.Context, expression string, v interface{}) error {
	raw, err := t.evaluate(ctx, expression)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

func (t *Tab) script(ctx context.Context, expression string, v interface{}) error {
	raw, err := t.evaluate(ctx, expression)
	if err != nil {
		return err
	}
	return driver.DecodeScript(raw, v)
}
