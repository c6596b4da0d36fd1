package driver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefChildDoesNotAlias(t *testing.T) {
	base := Ref(nil).Child("[data-qa-row]", 0)
	a := base.Child("[data-qa-a]", 0)
	b := base.Child("[data-qa-b]", 1)

	assert.Equal(t, "[data-qa-row][0] > [data-qa-a][0]", a.String())
	assert.Equal(t, "[data-qa-row][0] > [data-qa-b][1]", b.String())
	assert.Equal(t, "document", Ref(nil).String())
}

func TestResolveJSEmbedsSteps(t *testing.T) {
	js := ResolveJS(Ref{{Selector: `[data-qa-cell="x"]`, Index: 2}})
	assert.Contains(t, js, `"selector":"[data-qa-cell=\"x\"]"`)
	assert.Contains(t, js, `"index":2`)

	empty := ResolveJS(nil)
	assert.True(t, strings.Contains(empty, "for (const s of []"))
}

func TestDecodeScript(t *testing.T) {
	var text string
	require.NoError(t, DecodeScript([]byte(`{"value":"hello"}`), &text))
	assert.Equal(t, "hello", text)

	err := DecodeScript([]byte(`{"stale":true}`), &text)
	assert.ErrorIs(t, err, ErrStale)

	var attr AttributeResult
	require.NoError(t, DecodeScript([]byte(`{"value":{"present":true,"value":"x"}}`), &attr))
	assert.Equal(t, AttributeResult{Present: true, Value: "x"}, attr)

	assert.Error(t, DecodeScript([]byte(`not json`), &text))
}
