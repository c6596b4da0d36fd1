package locator

import (
	"context"
	"fmt"

	"github.com/tomyan/consolecap/internal/driver"
)

// Handle is the result of resolving a locator: zero, one or many
// element references in document order.
type Handle struct {
	Locator Locator
	Refs    []driver.Ref
}

func (h Handle) Len() int    { return len(h.Refs) }
func (h Handle) Empty() bool { return len(h.Refs) == 0 }

// First returns the first matched reference.
func (h Handle) First() (driver.Ref, bool) {
	return h.Nth(0)
}

// Nth returns the i-th matched reference.
func (h Handle) Nth(i int) (driver.Ref, bool) {
	if i < 0 || i >= len(h.Refs) {
		return nil, false
	}
	return h.Refs[i], true
}

// Texts returns the text of every matched element.
func (h Handle) Texts(ctx context.Context) ([]string, error) {
	d := h.Locator.Driver()
	out := make([]string, 0, len(h.Refs))
	for _, ref := range h.Refs {
		t, err := d.Text(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("reading text of %s: %w", h.Locator, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Texts resolves l and returns the text of every match.
func Texts(ctx context.Context, l Locator) ([]string, error) {
	h, err := l.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return h.Texts(ctx)
}
