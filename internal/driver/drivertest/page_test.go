package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/consolecap/internal/driver"
)

const rows = `<html><body>
<table>
  <tr data-qa-volume-cell="a"><td data-qa-volume-cell-label>a</td></tr>
  <tr data-qa-volume-cell="b"><td data-qa-volume-cell-label>b</td></tr>
</table>
<div data-qa-drawer hidden><span data-qa-drawer-title>Create a Volume</span></div>
<input data-qa-label value="">
</body></html>`

func TestCountScoped(t *testing.T) {
	t.Parallel()
	p := New(rows)
	ctx := context.Background()

	n, err := p.Count(ctx, nil, "[data-qa-volume-cell]")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	second := driver.Ref(nil).Child("[data-qa-volume-cell]", 1)
	n, err = p.Count(ctx, second, "[data-qa-volume-cell-label]")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	text, err := p.Text(ctx, second.Child("[data-qa-volume-cell-label]", 0))
	require.NoError(t, err)
	assert.Equal(t, "b", text)
}

func TestStaleRef(t *testing.T) {
	t.Parallel()
	p := New(rows)
	ref := driver.Ref(nil).Child("[data-qa-volume-cell]", 1)
	p.Mutate(func(doc *goquery.Document) {
		doc.Find(`[data-qa-volume-cell="b"]`).Remove()
	})

	_, err := p.Text(context.Background(), ref)
	assert.ErrorIs(t, err, driver.ErrStale)
}

func TestVisibilityInheritsHidden(t *testing.T) {
	t.Parallel()
	p := New(rows)
	ctx := context.Background()
	title := driver.Ref(nil).Child("[data-qa-drawer-title]", 0)

	vis, err := p.Visible(ctx, title)
	require.NoError(t, err)
	assert.False(t, vis)

	p.Mutate(func(doc *goquery.Document) { doc.Find("[data-qa-drawer]").RemoveAttr("hidden") })
	vis, err = p.Visible(ctx, title)
	require.NoError(t, err)
	assert.True(t, vis)
}

func TestClickRunsHooksForDescendants(t *testing.T) {
	t.Parallel()
	p := New(rows)
	p.OnClick("[data-qa-volume-cell]", func(doc *goquery.Document) {
		doc.Find("[data-qa-drawer]").RemoveAttr("hidden")
	})

	label := driver.Ref(nil).Child("[data-qa-volume-cell-label]", 0)
	require.NoError(t, p.Click(context.Background(), label))

	vis, err := p.Visible(context.Background(), driver.Ref(nil).Child("[data-qa-drawer]", 0))
	require.NoError(t, err)
	assert.True(t, vis)
	assert.Equal(t, []string{label.String()}, p.Clicks())
}

func TestClickHiddenFails(t *testing.T) {
	t.Parallel()
	p := New(rows)
	err := p.Click(context.Background(), driver.Ref(nil).Child("[data-qa-drawer-title]", 0))
	assert.Error(t, err)
}

func TestSetValue(t *testing.T) {
	t.Parallel()
	p := New(rows)
	ctx := context.Background()
	ref := driver.Ref(nil).Child("[data-qa-label]", 0)

	require.NoError(t, p.SetValue(ctx, ref, "vol-1"))
	v, ok, err := p.Attribute(ctx, ref, "value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "vol-1", v)
}

func TestAfterAppliesMutation(t *testing.T) {
	t.Parallel()
	p := New(rows)
	defer p.Close()
	p.After(20*time.Millisecond, func(doc *goquery.Document) {
		doc.Find("table").AppendHtml(`<tr data-qa-volume-cell="c"></tr>`)
	})

	assert.Eventually(t, func() bool {
		n, _ := p.Count(context.Background(), nil, "[data-qa-volume-cell]")
		return n == 3
	}, time.Second, 5*time.Millisecond)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()
	p := New(rows)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.URL(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
