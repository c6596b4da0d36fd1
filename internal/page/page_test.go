package page

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/consolecap/internal/driver/drivertest"
)

func TestAllLocatorsUseTestHooks(t *testing.T) {
	t.Parallel()
	c := New(drivertest.New(`<html></html>`))
	for _, l := range c.Locators() {
		assert.NoError(t, l.Validate(), l.String())
	}
	assert.NoError(t, c.Volumes.Cell("my.volume").Validate())
	assert.NoError(t, Input(c.Volumes.LabelField).Validate())
}

func TestParameterizedAccessors(t *testing.T) {
	t.Parallel()
	c := New(nil)
	assert.Equal(t, `[data-qa-volume-cell="vol-1"]`, c.Volumes.Cell("vol-1").Selector)
	assert.Equal(t, `[data-qa-tab="Settings"]`, c.Base.Tab("Settings").Selector)
	assert.Equal(t, `[data-qa-user-row="alice"] [data-qa-action-menu]`, c.Base.ActionMenuIn(c.Users.Row("alice")).Path())
	assert.Equal(t, `[data-qa-linode="web"] [data-qa-status]`, c.Linodes.StatusOf("web").Path())
}

func TestInputResolvesInsideField(t *testing.T) {
	t.Parallel()
	p := drivertest.New(`<html><body>
		<div data-qa-volume-label><label>Label</label><input value=""></div>
		<div data-qa-size><input value="20"></div>
	</body></html>`)
	c := New(p)

	h, err := Input(c.Volumes.SizeField).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())
	ref, _ := h.First()
	v, ok, err := p.Attribute(context.Background(), ref, "value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "20", v)
}
