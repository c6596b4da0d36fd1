// Package wait synchronizes tests with the console's asynchronous
// rendering by polling conditions against a driver.Driver.
package wait

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/locator"
)

// Waiter polls conditions against one driver.
type Waiter struct {
	d      driver.Driver
	policy Policy
	log    *zap.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithLogger sets the logger used for wait diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(w *Waiter) { w.log = l }
}

// New returns a Waiter for d using policy's tiers and poll interval.
func New(d driver.Driver, policy Policy, opts ...Option) *Waiter {
	w := &Waiter{d: d, policy: policy, log: zap.NewNop()}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Policy returns the waiter's timeout policy.
func (w *Waiter) Policy() Policy { return w.policy }

func (w *Waiter) Short() Timeout  { return w.policy.Timeout(Short) }
func (w *Waiter) Normal() Timeout { return w.policy.Timeout(Normal) }
func (w *Waiter) Long() Timeout   { return w.policy.Timeout(Long) }
func (w *Waiter) Minute() Timeout { return w.policy.Timeout(Minute) }

// Poll runs cond under the waiter's poll interval.
func (w *Waiter) Poll(ctx context.Context, cond Condition, timeout Timeout) error {
	return Poll(ctx, w.log, w.policy.PollInterval(), timeout, cond)
}

// ForVisible waits for the first element matched by l to be visible.
func (w *Waiter) ForVisible(ctx context.Context, l locator.Locator, timeout Timeout) error {
	return w.Poll(ctx, Visible(l), timeout)
}

// ForInvisible waits until no element matched by l is visible.
func (w *Waiter) ForInvisible(ctx context.Context, l locator.Locator, timeout Timeout) error {
	return w.Poll(ctx, Invisible(l), timeout)
}

// ForText waits for the first element matched by l to have non-empty text.
func (w *Waiter) ForText(ctx context.Context, l locator.Locator, timeout Timeout) error {
	return w.Poll(ctx, HasText(l), timeout)
}

// ForTextEqual waits for the first element matched by l to read want.
func (w *Waiter) ForTextEqual(ctx context.Context, l locator.Locator, want string, timeout Timeout) error {
	return w.Poll(ctx, TextEqual(l, want), timeout)
}

// ForTextMatch waits for the first element matched by l to match re.
func (w *Waiter) ForTextMatch(ctx context.Context, l locator.Locator, re *regexp.Regexp, timeout Timeout) error {
	return w.Poll(ctx, TextMatch(l, re), timeout)
}

// ForAttribute waits for attribute name of the first match to equal want.
func (w *Waiter) ForAttribute(ctx context.Context, l locator.Locator, name, want string, timeout Timeout) error {
	return w.Poll(ctx, AttributeEqual(l, name, want), timeout)
}

// ForCount waits for l to match exactly n elements.
func (w *Waiter) ForCount(ctx context.Context, l locator.Locator, n int, timeout Timeout) error {
	return w.Poll(ctx, Count(l, n), timeout)
}

// ForExist waits for l to match at least one element, or with invert
// for it to match none. An inverted wait on an absent element returns at
// once.
func (w *Waiter) ForExist(ctx context.Context, l locator.Locator, timeout Timeout, invert bool) error {
	return w.Poll(ctx, Exists(l, invert), timeout)
}

// ForURL waits for the page URL to contain substr.
func (w *Waiter) ForURL(ctx context.Context, substr string, timeout Timeout) error {
	return w.Poll(ctx, URLContains(w.d, substr), timeout)
}

// Until waits for pred, describing it as message on failure.
func (w *Waiter) Until(ctx context.Context, pred func(ctx context.Context) (bool, error), timeout Timeout, message string) error {
	return w.Poll(ctx, Condition{Description: message, Check: pred}, timeout)
}

// Visible is satisfied when the first match of l is visible.
func Visible(l locator.Locator) Condition {
	return firstElement(l, l.String()+" to be visible", func(ctx context.Context, d driver.Driver, ref driver.Ref) (bool, error) {
		return d.Visible(ctx, ref)
	})
}

// Invisible is satisfied when l matches nothing or nothing visible.
func Invisible(l locator.Locator) Condition {
	return Condition{
		Description: l.String() + " to be hidden",
		Page:        l.Page,
		Selector:    l.Path(),
		Check: func(ctx context.Context) (bool, error) {
			h, err := l.Resolve(ctx)
			if err != nil {
				return false, err
			}
			for _, ref := range h.Refs {
				vis, err := l.Driver().Visible(ctx, ref)
				if err != nil {
					return false, err
				}
				if vis {
					return false, nil
				}
			}
			return true, nil
		},
	}
}

// HasText is satisfied when the first match of l has non-empty text.
func HasText(l locator.Locator) Condition {
	return firstElement(l, l.String()+" to have text", func(ctx context.Context, d driver.Driver, ref driver.Ref) (bool, error) {
		t, err := d.Text(ctx, ref)
		return strings.TrimSpace(t) != "", err
	})
}

// TextEqual is satisfied when the first match of l reads want.
func TextEqual(l locator.Locator, want string) Condition {
	return firstElement(l, fmt.Sprintf("%s to have text %q", l, want), func(ctx context.Context, d driver.Driver, ref driver.Ref) (bool, error) {
		t, err := d.Text(ctx, ref)
		return strings.TrimSpace(t) == want, err
	})
}

// TextMatch is satisfied when the first match of l matches re.
func TextMatch(l locator.Locator, re *regexp.Regexp) Condition {
	return firstElement(l, fmt.Sprintf("%s to match /%s/", l, re), func(ctx context.Context, d driver.Driver, ref driver.Ref) (bool, error) {
		t, err := d.Text(ctx, ref)
		return re.MatchString(t), err
	})
}

// AttributeEqual is satisfied when attribute name of the first match is want.
func AttributeEqual(l locator.Locator, name, want string) Condition {
	return firstElement(l, fmt.Sprintf("%s to have %s=%q", l, name, want), func(ctx context.Context, d driver.Driver, ref driver.Ref) (bool, error) {
		v, ok, err := d.Attribute(ctx, ref, name)
		return ok && v == want, err
	})
}

// Count is satisfied when l matches exactly n elements.
func Count(l locator.Locator, n int) Condition {
	return Condition{
		Description: fmt.Sprintf("%s to match %d elements", l, n),
		Page:        l.Page,
		Selector:    l.Path(),
		presence:    n > 0,
		Check: func(ctx context.Context) (bool, error) {
			h, err := l.Resolve(ctx)
			if err != nil {
				return false, err
			}
			return h.Len() == n, nil
		},
	}
}

// Exists is satisfied when l matches something, or nothing when invert.
func Exists(l locator.Locator, invert bool) Condition {
	desc := l.String() + " to exist"
	if invert {
		desc = l.String() + " to be gone"
	}
	return Condition{
		Description: desc,
		Page:        l.Page,
		Selector:    l.Path(),
		presence:    !invert,
		Check: func(ctx context.Context) (bool, error) {
			h, err := l.Resolve(ctx)
			if err != nil {
				return false, err
			}
			return h.Empty() == invert, nil
		},
	}
}

// URLContains is satisfied when the page URL contains substr.
func URLContains(d driver.Driver, substr string) Condition {
	return Condition{
		Description: fmt.Sprintf("url to contain %q", substr),
		Check: func(ctx context.Context) (bool, error) {
			u, err := d.URL(ctx)
			return strings.Contains(u, substr), err
		},
	}
}

func firstElement(l locator.Locator, desc string, check func(context.Context, driver.Driver, driver.Ref) (bool, error)) Condition {
	return Condition{
		Description: desc,
		Page:        l.Page,
		Selector:    l.Path(),
		presence:    true,
		Check: func(ctx context.Context) (bool, error) {
			h, err := l.Resolve(ctx)
			if err != nil {
				return false, err
			}
			ref, ok := h.First()
			if !ok {
				return false, nil
			}
			return check(ctx, l.Driver(), ref)
		},
	}
}
