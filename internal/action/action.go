// Package action composes locators and waits into user-level steps. Every
// helper waits for its precondition, interacts, then waits for the
// postcondition that proves the interaction took effect.
package action

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/locator"
	"github.com/tomyan/consolecap/internal/page"
	"github.com/tomyan/consolecap/internal/wait"
)

// PostConditionError reports an interaction whose expected effect never
// became observable.
type PostConditionError struct {
	Action   string
	Expected string
	Observed string
	Err      error
}

func (e *PostConditionError) Error() string {
	msg := fmt.Sprintf("%s: expected %s", e.Action, e.Expected)
	if e.Observed != "" {
		msg += ", observed " + e.Observed
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PostConditionError) Unwrap() error {
	return e.Err
}

// Helper runs actions against one browser session.
type Helper struct {
	d       driver.Driver
	w       *wait.Waiter
	pages   *page.Console
	baseURL string
	log     *zap.Logger
}

// Option configures a Helper.
type Option func(*Helper)

// WithLogger sets the logger for action tracing.
func WithLogger(l *zap.Logger) Option {
	return func(h *Helper) { h.log = l }
}

// New returns a Helper. baseURL is the console origin that Navigate paths
// are joined to.
func New(d driver.Driver, w *wait.Waiter, pages *page.Console, baseURL string, opts ...Option) *Helper {
	h := &Helper{
		d:       d,
		w:       w,
		pages:   pages,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Pages returns the page objects the helper acts on.
func (h *Helper) Pages() *page.Console { return h.pages }

// Waiter returns the helper's waiter.
func (h *Helper) Waiter() *wait.Waiter { return h.w }

// Navigate loads path relative to the console origin and waits for the
// URL to reflect it.
func (h *Helper) Navigate(ctx context.Context, path string) error {
	url := path
	if strings.HasPrefix(path, "/") {
		url = h.baseURL + path
	}
	h.log.Debug("navigate", zap.String("url", url))
	if err := h.d.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return h.post(ctx, "navigate", "url containing "+path,
		h.w.ForURL(ctx, path, h.w.Normal()), h.observeURL)
}

// Click waits for l to be visible and clicks its first match.
func (h *Helper) Click(ctx context.Context, l locator.Locator) error {
	if err := h.w.ForVisible(ctx, l, h.w.Normal()); err != nil {
		return fmt.Errorf("clicking %s: %w", l, err)
	}
	return h.clickFirst(ctx, l)
}

// FillField sets the input inside field to value and verifies it stuck.
func (h *Helper) FillField(ctx context.Context, field locator.Locator, value string) error {
	return h.fillInput(ctx, field.Name, page.Input(field), value)
}

func (h *Helper) fillInput(ctx context.Context, name string, input locator.Locator, value string) error {
	if err := h.w.ForVisible(ctx, input, h.w.Normal()); err != nil {
		return fmt.Errorf("filling %s: %w", name, err)
	}
	ref, err := first(ctx, input)
	if err != nil {
		return err
	}
	if err := h.d.SetValue(ctx, ref, value); err != nil {
		return fmt.Errorf("filling %s: %w", name, err)
	}
	return h.post(ctx, "fill "+name, fmt.Sprintf("value %q", value),
		h.w.ForAttribute(ctx, input, "value", value, h.w.Short()),
		h.observeAttr(input, "value"))
}

// ChangeTab selects the tab labelled name.
func (h *Helper) ChangeTab(ctx context.Context, name string) error {
	tab := h.pages.Base.Tab(name)
	if err := h.Click(ctx, tab); err != nil {
		return err
	}
	return h.post(ctx, "change tab", fmt.Sprintf("tab %q selected", name),
		h.w.ForAttribute(ctx, tab, "aria-selected", "true", h.w.Short()),
		h.observeAttr(tab, "aria-selected"))
}

// SelectActionMenuItem opens the action menu inside row, picks label and
// verifies the menu closed.
func (h *Helper) SelectActionMenuItem(ctx context.Context, row locator.Locator, label string) error {
	base := h.pages.Base
	name := fmt.Sprintf("action menu %q on %s", label, row.Name)
	if err := h.Click(ctx, base.ActionMenuIn(row)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return h.pickAndClose(ctx, name, base.ActionMenuItem(label), base.ActionMenuItems)
}

// SelectCreateMenuItem picks label from the global create menu.
func (h *Helper) SelectCreateMenuItem(ctx context.Context, label string) error {
	base := h.pages.Base
	name := fmt.Sprintf("create menu %q", label)
	if err := h.Click(ctx, base.GlobalCreate); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return h.pickAndClose(ctx, name, base.CreateMenuItem(label), base.CreateMenuItems)
}

// SelectOption opens the select field, picks value and verifies both that
// the option list closed and that the field now shows value.
func (h *Helper) SelectOption(ctx context.Context, field locator.Locator, value string) error {
	base := h.pages.Base
	name := fmt.Sprintf("select %q in %s", value, field.Name)
	if err := h.Click(ctx, field); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := h.pickAndClose(ctx, name, base.Option(value), base.SelectOptions); err != nil {
		return err
	}
	return h.post(ctx, name, fmt.Sprintf("field showing %q", value),
		h.w.ForTextMatch(ctx, field, containsRegexp(value), h.w.Short()),
		h.observeText(field))
}

// OpenDrawer clicks trigger and waits for a drawer titled title.
func (h *Helper) OpenDrawer(ctx context.Context, trigger locator.Locator, title string) error {
	if err := h.Click(ctx, trigger); err != nil {
		return fmt.Errorf("opening drawer %q: %w", title, err)
	}
	return h.post(ctx, "open drawer", fmt.Sprintf("drawer titled %q", title),
		h.w.ForTextEqual(ctx, h.pages.Base.DrawerTitle, title, h.w.Normal()),
		h.observeText(h.pages.Base.DrawerTitle))
}

// CloseDrawer dismisses the open drawer.
func (h *Helper) CloseDrawer(ctx context.Context) error {
	if err := h.Click(ctx, h.pages.Base.DrawerClose); err != nil {
		return fmt.Errorf("closing drawer: %w", err)
	}
	return h.post(ctx, "close drawer", "no drawer",
		h.w.ForExist(ctx, h.pages.Base.DrawerTitle, h.w.Normal(), true),
		h.observeText(h.pages.Base.DrawerTitle))
}

// SubmitDrawer clicks the drawer's submit button and waits for it to close.
func (h *Helper) SubmitDrawer(ctx context.Context, submit locator.Locator) error {
	if err := h.Click(ctx, submit); err != nil {
		return fmt.Errorf("submitting drawer: %w", err)
	}
	return h.post(ctx, "submit drawer", "drawer closed",
		h.w.ForExist(ctx, h.pages.Base.DrawerTitle, h.w.Long(), true),
		h.observeText(h.pages.Base.Notice))
}

// ConfirmDialog accepts the open confirmation dialog.
func (h *Helper) ConfirmDialog(ctx context.Context) error {
	return h.closeDialog(ctx, "confirm dialog", h.pages.Base.DialogConfirm)
}

// CancelDialog dismisses the open confirmation dialog.
func (h *Helper) CancelDialog(ctx context.Context) error {
	return h.closeDialog(ctx, "cancel dialog", h.pages.Base.DialogCancel)
}

// ExpectToast waits for a toast reading text.
func (h *Helper) ExpectToast(ctx context.Context, text string) error {
	return h.post(ctx, "toast", fmt.Sprintf("toast %q", text),
		h.w.ForTextEqual(ctx, h.pages.Base.Toast, text, h.w.Normal()),
		h.observeText(h.pages.Base.Toast))
}

func (h *Helper) closeDialog(ctx context.Context, name string, button locator.Locator) error {
	if err := h.w.ForVisible(ctx, h.pages.Base.DialogTitle, h.w.Normal()); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := h.Click(ctx, button); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return h.post(ctx, name, "dialog closed",
		h.w.ForExist(ctx, h.pages.Base.DialogTitle, h.w.Normal(), true),
		h.observeText(h.pages.Base.DialogTitle))
}

// pickAndClose clicks item in an open overlay, then waits for every entry
// of the overlay to be gone.
func (h *Helper) pickAndClose(ctx context.Context, name string, item, entries locator.Locator) error {
	if err := h.w.ForVisible(ctx, item, h.w.Short()); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := h.clickFirst(ctx, item); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return h.post(ctx, name, "menu closed",
		h.w.ForInvisible(ctx, entries, h.w.Short()),
		h.observeCount(entries))
}

func (h *Helper) clickFirst(ctx context.Context, l locator.Locator) error {
	ref, err := first(ctx, l)
	if err != nil {
		return err
	}
	h.log.Debug("click", zap.Stringer("locator", l), zap.Stringer("ref", ref))
	if err := h.d.Click(ctx, ref); err != nil {
		return fmt.Errorf("clicking %s: %w", l, err)
	}
	return nil
}

// post turns a failed postcondition wait into a PostConditionError.
func (h *Helper) post(ctx context.Context, action, expected string, err error, observe func(context.Context) string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !errors.Is(err, wait.ErrTimeout) {
		return err
	}
	return &PostConditionError{
		Action:   action,
		Expected: expected,
		Observed: observe(context.WithoutCancel(ctx)),
		Err:      err,
	}
}

func (h *Helper) observeURL(ctx context.Context) string {
	u, err := h.d.URL(ctx)
	if err != nil {
		return "url unavailable"
	}
	return "url " + u
}

func (h *Helper) observeText(l locator.Locator) func(context.Context) string {
	return func(ctx context.Context) string {
		texts, err := locator.Texts(ctx, l)
		switch {
		case err != nil:
			return err.Error()
		case len(texts) == 0:
			return l.Name + " absent"
		default:
			return fmt.Sprintf("%s text %q", l.Name, texts[0])
		}
	}
}

func (h *Helper) observeAttr(l locator.Locator, name string) func(context.Context) string {
	return func(ctx context.Context) string {
		ref, err := first(ctx, l)
		if err != nil {
			return err.Error()
		}
		v, ok, err := h.d.Attribute(ctx, ref, name)
		switch {
		case err != nil:
			return err.Error()
		case !ok:
			return name + " unset"
		default:
			return fmt.Sprintf("%s=%q", name, v)
		}
	}
}

func (h *Helper) observeCount(l locator.Locator) func(context.Context) string {
	return func(ctx context.Context) string {
		hd, err := l.Resolve(ctx)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%d %s still present", hd.Len(), l.Name)
	}
}

func containsRegexp(s string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(s))
}

func first(ctx context.Context, l locator.Locator) (driver.Ref, error) {
	hd, err := l.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := hd.First()
	if !ok {
		return nil, fmt.Errorf("%s: %w", l, driver.ErrStale)
	}
	return ref, nil
}
