package locator

import (
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/driver/drivertest"
)

const volumesHTML = `<html><body>
<table>
  <tr data-qa-volume-cell="vol-a"><td data-qa-volume-cell-label>vol-a</td><td data-qa-size>10 GiB</td></tr>
  <tr data-qa-volume-cell="vol-b"><td data-qa-volume-cell-label>vol-b</td><td data-qa-size>20 GiB</td></tr>
</table>
</body></html>`

func TestSelectors(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[data-qa-volume-cell]", QA("volume-cell"))
	assert.Equal(t, `[data-qa-volume-cell="vol-a"]`, QAValue("volume-cell", "vol-a"))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	b := On(nil, "volumes")

	tests := []struct {
		name    string
		loc     Locator
		wantErr bool
	}{
		{"qa", b.QA("volume-cell"), false},
		{"qa value with dot", b.QAValue("domain", "example.com"), false},
		{"tag in scope", b.CSS("input", "input").Within(b.QA("volume-label")), false},
		{"class", b.CSS("row", ".MuiTableRow-root"), true},
		{"compound class", b.CSS("row", "tr.selected"), true},
		{"class in scope", b.QA("cell").Within(b.CSS("table", "div.table")), true},
		{"empty", b.CSS("nothing", ""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveManyInDocumentOrder(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	cells := On(p, "volumes").QA("volume-cell")

	h, err := cells.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	labels, err := On(p, "volumes").QA("volume-cell-label").Resolve(context.Background())
	require.NoError(t, err)
	texts, err := labels.Texts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"vol-a", "vol-b"}, texts)
}

func TestResolveEmptyIsNotAnError(t *testing.T) {
	t.Parallel()
	p := drivertest.New(`<html><body></body></html>`)
	h, err := On(p, "volumes").QA("volume-cell").Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Empty())
	_, ok := h.First()
	assert.False(t, ok)
}

func TestResolveScoped(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	b := On(p, "volumes")
	sizes := b.QA("size").Within(b.QA("volume-cell"))

	h, err := sizes.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, h.Len())

	second, ok := h.Nth(1)
	require.True(t, ok)
	assert.Equal(t, driver.Ref{
		{Selector: "[data-qa-volume-cell]", Index: 1},
		{Selector: "[data-qa-size]", Index: 0},
	}, second)
	assert.Equal(t, "volumes.size ([data-qa-volume-cell] [data-qa-size])", sizes.String())
}

func TestResolveIsIdempotentAndUncached(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	cells := On(p, "volumes").QA("volume-cell")
	ctx := context.Background()

	first, err := cells.Resolve(ctx)
	require.NoError(t, err)
	again, err := cells.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	p.Mutate(func(doc *goquery.Document) { doc.Find(`[data-qa-volume-cell="vol-a"]`).Remove() })
	after, err := cells.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Len())
}

func TestTextsOnValueLocator(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	b := On(p, "volumes")
	texts, err := Texts(context.Background(), b.QA("volume-cell-label").Within(b.QAValue("volume-cell", "vol-b")))
	require.NoError(t, err)
	assert.Equal(t, []string{"vol-b"}, texts)
}
