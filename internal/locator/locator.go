// Package locator names the elements of a page. A Locator is a definition;
// nothing is looked up until Resolve, and nothing is cached afterwards.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomyan/consolecap/internal/driver"
)

// QAPrefix is the attribute prefix the console uses for test hooks.
const QAPrefix = "data-qa-"

// Locator identifies zero or more elements on one page.
type Locator struct {
	d driver.Driver

	Page     string
	Name     string
	Selector string
	// Scope, when set, restricts matches to descendants of each element
	// the scope resolves to.
	Scope *Locator
}

// Builder creates locators bound to one driver and page name.
type Builder struct {
	d    driver.Driver
	page string
}

// On returns a Builder for the named page.
func On(d driver.Driver, page string) Builder {
	return Builder{d: d, page: page}
}

// QA locates elements carrying the data-qa-<name> attribute.
func (b Builder) QA(name string) Locator {
	return Locator{d: b.d, Page: b.page, Name: name, Selector: QA(name)}
}

// QAValue locates elements whose data-qa-<name> attribute equals value.
func (b Builder) QAValue(name, value string) Locator {
	return Locator{d: b.d, Page: b.page, Name: name + "=" + value, Selector: QAValue(name, value)}
}

// CSS locates elements by an arbitrary selector. Page objects use it for
// tag selectors inside a QA scope (an input inside a text field wrapper).
func (b Builder) CSS(name, selector string) Locator {
	return Locator{d: b.d, Page: b.page, Name: name, Selector: selector}
}

// QA returns the selector for the data-qa-<name> attribute.
func QA(name string) string {
	return "[" + QAPrefix + name + "]"
}

// QAValue returns the selector matching data-qa-<name>="value".
func QAValue(name, value string) string {
	return fmt.Sprintf("[%s%s=%q]", QAPrefix, name, value)
}

// Within returns a copy of l scoped to descendants of scope.
func (l Locator) Within(scope Locator) Locator {
	s := scope
	l.Scope = &s
	if l.d == nil {
		l.d = scope.d
	}
	return l
}

// Driver returns the driver the locator resolves against.
func (l Locator) Driver() driver.Driver {
	return l.d
}

func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(l.Page)
	b.WriteByte('.')
	b.WriteString(l.Name)
	b.WriteString(" (")
	b.WriteString(l.Path())
	b.WriteByte(')')
	return b.String()
}

// Path returns the full selector chain, outermost scope first.
func (l Locator) Path() string {
	if l.Scope == nil {
		return l.Selector
	}
	return l.Scope.Path() + " " + l.Selector
}

// Validate rejects locators that depend on styling rather than test hooks.
func (l Locator) Validate() error {
	if l.Selector == "" {
		return fmt.Errorf("locator %s.%s: empty selector", l.Page, l.Name)
	}
	if hasClassSelector(l.Selector) {
		return fmt.Errorf("locator %s.%s: class selector in %q", l.Page, l.Name, l.Selector)
	}
	if l.Scope != nil {
		return l.Scope.Validate()
	}
	return nil
}

// Resolve queries the page for every element the locator matches, in
// document order. No match is an empty Handle, not an error.
func (l Locator) Resolve(ctx context.Context) (Handle, error) {
	if l.d == nil {
		return Handle{}, fmt.Errorf("locator %s: no driver", l)
	}
	scopes := []driver.Ref{nil}
	if l.Scope != nil {
		sh, err := l.Scope.Resolve(ctx)
		if err != nil {
			return Handle{}, err
		}
		scopes = sh.Refs
	}

	h := Handle{Locator: l}
	for _, scope := range scopes {
		n, err := l.d.Count(ctx, scope, l.Selector)
		if err != nil {
			return Handle{}, fmt.Errorf("resolving %s: %w", l, err)
		}
		for i := 0; i < n; i++ {
			h.Refs = append(h.Refs, scope.Child(l.Selector, i))
		}
	}
	return h, nil
}

// hasClassSelector reports whether sel contains a '.' outside attribute
// brackets and quoted strings.
func hasClassSelector(sel string) bool {
	depth := 0
	var quote rune
	for _, r := range sel {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[':
			depth++
		case r == ']':
			depth--
		case r == '.' && depth == 0:
			return true
		}
	}
	return false
}
