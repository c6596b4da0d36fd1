// Package drivertest provides an in-memory driver.Driver backed by a
// goquery document. Click handlers and timed mutations stand in for the
// console's client-side rendering.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tomyan/consolecap/internal/driver"
)

// Handler mutates the document in response to an event. It runs with the
// page lock held and must not call back into the Page, except After.
type Handler func(doc *goquery.Document)

type clickHook struct {
	selector string
	fn       Handler
}

// Page is a fake browser tab. The zero value is not usable; call New.
type Page struct {
	mu         sync.Mutex
	doc        *goquery.Document
	url        string
	hooks      []clickHook
	onNavigate func(url string, doc *goquery.Document)
	clicks     []string
	screenshot []byte

	tmu    sync.Mutex
	timers []*time.Timer
	closed bool
}

var _ driver.Driver = (*Page)(nil)

// New parses html into a page. It panics on parse failure since the
// markup is always a test literal.
func New(html string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("drivertest: parsing html: %v", err))
	}
	return &Page{doc: doc, url: "about:blank", screenshot: []byte("\x89PNG fake")}
}

// OnClick registers fn to run when an element matching selector, or one
// of its descendants, is clicked.
func (p *Page) OnClick(selector string, fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, clickHook{selector: selector, fn: fn})
}

// OnNavigate registers fn to run on every Navigate.
func (p *Page) OnNavigate(fn func(url string, doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
}

// After schedules fn to mutate the document once d has elapsed.
func (p *Page) After(d time.Duration, fn Handler) {
	p.tmu.Lock()
	defer p.tmu.Unlock()
	if p.closed {
		return
	}
	p.timers = append(p.timers, time.AfterFunc(d, func() { p.Mutate(fn) }))
}

// Mutate runs fn against the document immediately.
func (p *Page) Mutate(fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// Clicks returns the references clicked so far, formatted with Ref.String.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// HTML returns the current document markup.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, _ := p.doc.Html()
	return h
}

// Close stops pending scheduled mutations.
func (p *Page) Close() {
	p.tmu.Lock()
	defer p.tmu.Unlock()
	p.closed = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	if p.onNavigate != nil {
		p.onNavigate(url, p.doc)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Count(ctx context.Context, scope driver.Ref, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	root, err := p.resolve(scope)
	if err != nil {
		return 0, err
	}
	return root.Find(selector).Length(), nil
}

func (p *Page) Click(ctx context.Context, ref driver.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.resolve(ref)
	if err != nil {
		return err
	}
	if !visible(sel) {
		return fmt.Errorf("clicking %s: element is not visible", ref)
	}
	if _, disabled := sel.Attr("disabled"); disabled {
		return fmt.Errorf("clicking %s: element is disabled", ref)
	}
	p.clicks = append(p.clicks, ref.String())
	for _, h := range p.hooks {
		if sel.Closest(h.selector).Length() > 0 {
			h.fn(p.doc)
		}
	}
	return nil
}

func (p *Page) SetValue(ctx context.Context, ref driver.Ref, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.resolve(ref)
	if err != nil {
		return err
	}
	if goquery.NodeName(sel) == "textarea" {
		sel.SetText(value)
		return nil
	}
	sel.SetAttr("value", value)
	return nil
}

func (p *Page) Text(ctx context.Context, ref driver.Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.resolve(ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

func (p *Page) Attribute(ctx context.Context, ref driver.Ref, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.resolve(ref)
	if err != nil {
		return "", false, err
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

func (p *Page) Visible(ctx context.Context, ref driver.Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.resolve(ref)
	if err != nil {
		return false, err
	}
	return visible(sel), nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.screenshot...), nil
}

func (p *Page) resolve(ref driver.Ref) (*goquery.Selection, error) {
	sel := p.doc.Selection
	for _, step := range ref {
		matches := sel.Find(step.Selector)
		if step.Index >= matches.Length() {
			return nil, driver.ErrStale
		}
		sel = matches.Eq(step.Index)
	}
	return sel, nil
}

// visible treats an element as hidden when it or an ancestor carries the
// hidden attribute or an inline display:none.
func visible(sel *goquery.Selection) bool {
	for s := sel; s.Length() > 0; s = s.Parent() {
		if _, ok := s.Attr("hidden"); ok {
			return false
		}
		style, _ := s.Attr("style")
		if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			return false
		}
	}
	return true
}
