// Package driver defines the browser capability set that page objects,
// waits and actions are written against. Backends live in internal/chrome
// (in-house CDP client), chromedpdriver, roddriver and drivertest.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrStale is returned when a reference no longer matches an element,
// usually because the page re-rendered between resolve and use.
var ErrStale = errors.New("element is no longer attached")

// Step selects the Index-th match of Selector.
type Step struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
}

// Ref addresses one element. Each step is evaluated inside the element
// chosen by the previous step; an empty Ref is the document itself.
type Ref []Step

// Child returns a new reference to the index-th match of selector inside r.
func (r Ref) Child(selector string, index int) Ref {
	out := make(Ref, len(r), len(r)+1)
	copy(out, r)
	return append(out, Step{Selector: selector, Index: index})
}

func (r Ref) String() string {
	if len(r) == 0 {
		return "document"
	}
	parts := make([]string, len(r))
	for i, s := range r {
		parts[i] = fmt.Sprintf("%s[%d]", s.Selector, s.Index)
	}
	return strings.Join(parts, " > ")
}

// Driver is the capability set a browser backend provides. Implementations
// must re-query the page on every call; nothing is cached across calls.
type Driver interface {
	// Navigate loads url and returns once the load event has fired.
	Navigate(ctx context.Context, url string) error
	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)
	// Count returns how many elements match selector inside scope.
	// A nil scope counts matches in the whole document.
	Count(ctx context.Context, scope Ref, selector string) (int, error)
	Click(ctx context.Context, ref Ref) error
	// SetValue replaces the value of an input, textarea or select and
	// fires the input and change events.
	SetValue(ctx context.Context, ref Ref, value string) error
	Text(ctx context.Context, ref Ref) (string, error)
	// Attribute returns the attribute value and whether it was present.
	// For "value" the live property is returned instead of the attribute.
	Attribute(ctx context.Context, ref Ref, name string) (string, bool, error)
	Visible(ctx context.Context, ref Ref) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
}
