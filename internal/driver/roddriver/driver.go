// Package roddriver implements driver.Driver on go-rod.
package roddriver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	rodlauncher "github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/driver"
)

// Options configures a Driver.
type Options struct {
	// ControlURL is a browser websocket URL. When empty a browser is
	// launched with rod's launcher.
	ControlURL string
	ChromePath string
	Headless   bool
	Logger     *zap.Logger
}

// Driver drives one rod page.
type Driver struct {
	browser *rod.Browser
	page    *rod.Page
	launch  *rodlauncher.Launcher
	logger  *zap.Logger
}

var _ driver.Driver = (*Driver)(nil)

// New connects to, or launches, a browser and opens a blank page.
func New(ctx context.Context, opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{logger: logger}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := rodlauncher.New().Headless(opts.Headless).NoSandbox(true)
		if opts.ChromePath != "" {
			l = l.Bin(opts.ChromePath)
		}
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		d.launch = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		d.Close()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}
	d.page = page
	logger.Info("rod page ready", zap.String("control_url", controlURL), zap.Bool("launched", d.launch != nil))
	return d, nil
}

// Close closes the page and, if New launched the browser, kills it.
func (d *Driver) Close() {
	if d.page != nil {
		d.page.Close()
	}
	if d.launch != nil {
		if d.browser != nil {
			d.browser.Close()
		}
		d.launch.Kill()
		d.launch.Cleanup()
	}
}

func (d *Driver) eval(ctx context.Context, expression string) ([]byte, error) {
	res, err := d.page.Context(ctx).Evaluate(rod.Eval("() => " + expression))
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return raw, nil
}

func (d *Driver) script(ctx context.Context, expression string, v interface{}) error {
	raw, err := d.eval(ctx, expression)
	if err != nil {
		return err
	}
	return driver.DecodeScript(raw, v)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load of %s: %w", url, err)
	}
	return nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *Driver) Count(ctx context.Context, scope driver.Ref, selector string) (int, error) {
	raw, err := d.eval(ctx, driver.CountJS(scope, selector))
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("parsing count: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("scope %s: %w", scope, driver.ErrStale)
	}
	return n, nil
}

func (d *Driver) Click(ctx context.Context, ref driver.Ref) error {
	var pt driver.Point
	if err := d.script(ctx, driver.Script(ref, driver.CenterBody), &pt); err != nil {
		return err
	}
	p := d.page.Context(ctx)
	for _, typ := range []proto.InputDispatchMouseEventType{
		proto.InputDispatchMouseEventTypeMouseMoved,
		proto.InputDispatchMouseEventTypeMousePressed,
		proto.InputDispatchMouseEventTypeMouseReleased,
	} {
		ev := proto.InputDispatchMouseEvent{Type: typ, X: pt.X, Y: pt.Y}
		if typ != proto.InputDispatchMouseEventTypeMouseMoved {
			ev.Button = proto.InputMouseButtonLeft
			ev.ClickCount = 1
		}
		if err := ev.Call(p); err != nil {
			return fmt.Errorf("dispatching %s: %w", typ, err)
		}
	}
	return nil
}

func (d *Driver) SetValue(ctx context.Context, ref driver.Ref, value string) error {
	return d.script(ctx, driver.SetValueScript(ref, value), nil)
}

func (d *Driver) Text(ctx context.Context, ref driver.Ref) (string, error) {
	var s string
	if err := d.script(ctx, driver.Script(ref, driver.TextBody), &s); err != nil {
		return "", err
	}
	return s, nil
}

func (d *Driver) Attribute(ctx context.Context, ref driver.Ref, name string) (string, bool, error) {
	var res driver.AttributeResult
	if err := d.script(ctx, driver.AttributeScript(ref, name), &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (d *Driver) Visible(ctx context.Context, ref driver.Ref) (bool, error) {
	var v bool
	if err := d.script(ctx, driver.Script(ref, driver.VisibleBody), &v); err != nil {
		return false, err
	}
	return v, nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := d.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return data, nil
}
