// Package chromedpdriver implements driver.Driver on chromedp, either
// against a Chrome it starts itself or a remote browser websocket.
package chromedpdriver

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/driver"
)

// Options configures a Driver.
type Options struct {
	// RemoteURL is a browser websocket URL. When set, no browser is started.
	RemoteURL string
	// ChromePath overrides chromedp's own browser lookup.
	ChromePath string
	Headless   bool
	Width      int
	Height     int
	Logger     *zap.Logger
}

// Driver drives one chromedp tab.
type Driver struct {
	ctx     context.Context // tab context; every action derives from it
	cancels []context.CancelFunc
	logger  *zap.Logger
}

var _ driver.Driver = (*Driver)(nil)

// New allocates a browser, opens a tab and waits until it is usable. ctx
// bounds the life of the browser, not just the call.
func New(ctx context.Context, opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOptions(opts)...)
	}

	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)
	d := &Driver{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{tabCancel, allocCancel},
		logger:  logger,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if ev, ok := ev.(*runtime.EventExceptionThrown); ok {
			logger.Debug("page exception", zap.String("text", ev.ExceptionDetails.Text))
		}
	})

	// The first Run starts the browser and attaches the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("starting chromedp: %w", err)
	}
	logger.Info("chromedp tab ready", zap.Bool("remote", opts.RemoteURL != ""))
	return d, nil
}

func execOptions(opts Options) []chromedp.ExecAllocatorOption {
	w, h := opts.Width, opts.Height
	if w == 0 || h == 0 {
		w, h = 1920, 1080
	}
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(w, h),
	)
	if opts.ChromePath != "" {
		out = append(out, chromedp.ExecPath(opts.ChromePath))
	}
	return out
}

// Close closes the tab and releases the allocator.
func (d *Driver) Close() {
	for _, cancel := range d.cancels {
		cancel()
	}
}

// run executes actions on the tab, aborting when ctx ends.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (d *Driver) eval(ctx context.Context, expression string) ([]byte, error) {
	var raw []byte
	if err := d.run(ctx, chromedp.Evaluate(expression, &raw)); err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
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
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	var u string
	if err := d.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (d *Driver) Count(ctx context.Context, scope driver.Ref, selector string) (int, error) {
	var n int
	if err := d.run(ctx, chromedp.Evaluate(driver.CountJS(scope, selector), &n)); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("scope %s: %w", scope, driver.ErrStale)
	}
	return n, nil
}

func (d *Driver) Click(ctx context.Context, ref driver.Ref) error {
	var p driver.Point
	if err := d.script(ctx, driver.Script(ref, driver.CenterBody), &p); err != nil {
		return err
	}
	return d.run(ctx, chromedp.MouseClickXY(p.X, p.Y))
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
	var buf []byte
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}
