package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tomyan/consolecap/internal/driver/drivertest"
	"github.com/tomyan/consolecap/internal/page"
	"github.com/tomyan/consolecap/internal/wait"
)

// Tier budgets scaled down to Short=100ms Normal=240ms Long=600ms.
var fastPolicy = wait.Policy{Multiplier: 0.02, Poll: 10 * time.Millisecond}

const consoleHTML = `<html><body>
<header>
  <button data-qa-add-new-menu-button>Create</button>
  <ul id="create-menu" hidden>
    <li data-qa-add-new-menu="Linode">Linode</li>
    <li data-qa-add-new-menu="Volume">Volume</li>
  </ul>
  <button data-qa-user-menu>user</button>
  <ul id="user-menu" hidden><li><a data-qa-menu-link="Log Out">Log Out</a></li></ul>
</header>
<nav>
  <button data-qa-tab="Summary" aria-selected="true">Summary</button>
  <button data-qa-tab="Settings" aria-selected="false">Settings</button>
</nav>
<div data-qa-toast hidden></div>
<div id="drawer"></div>
<div id="dialog"></div>
<table id="volumes">
  <tr data-qa-volume-cell="vol-a"><td data-qa-volume-cell-label>vol-a</td><td><button data-qa-action-menu>...</button></td></tr>
</table>
<ul id="action-menu" hidden>
  <li data-qa-action-menu-item="Edit">Edit</li>
  <li data-qa-action-menu-item="Delete">Delete</li>
</ul>
</body></html>`

const volumeDrawer = `<h2 data-qa-drawer-title>Create a Volume</h2>
<div data-qa-volume-label><input value=""></div>
<div data-qa-size><input value="20"></div>
<div data-qa-select-region>Select a Region</div>
<ul id="regions" hidden>
  <li data-qa-option="us-east">Newark, NJ</li>
  <li data-qa-option="eu-west">London, UK</li>
</ul>
<button data-qa-submit>Submit</button>
<button data-qa-close-drawer>Close</button>`

const deleteDialog = `<h2 data-qa-dialog-title>Delete Volume</h2>
<button data-qa-confirm>Delete</button>
<button data-qa-cancel>Cancel</button>`

type fakeConsole struct {
	page    *drivertest.Page
	helper  *Helper
	created string
}

func newFakeConsole(t *testing.T) *fakeConsole {
	t.Helper()
	p := drivertest.New(consoleHTML)
	t.Cleanup(p.Close)
	log := zaptest.NewLogger(t)
	w := wait.New(p, fastPolicy, wait.WithLogger(log))
	fc := &fakeConsole{page: p}
	fc.helper = New(p, w, page.New(p), "https://cloud.example.com", WithLogger(log))

	p.OnClick("[data-qa-add-new-menu-button]", func(doc *goquery.Document) {
		doc.Find("#create-menu").RemoveAttr("hidden")
	})
	p.OnClick(`[data-qa-add-new-menu="Volume"]`, func(doc *goquery.Document) {
		doc.Find("#create-menu").SetAttr("hidden", "")
		doc.Find("#drawer").SetHtml(volumeDrawer)
	})
	p.OnClick("[data-qa-select-region]", func(doc *goquery.Document) {
		doc.Find("#regions").RemoveAttr("hidden")
	})
	p.OnClick("[data-qa-option]", func(doc *goquery.Document) {
		doc.Find("#regions").SetAttr("hidden", "")
		doc.Find("[data-qa-select-region]").SetText("Newark, NJ (us-east)")
	})
	p.OnClick("[data-qa-close-drawer]", func(doc *goquery.Document) {
		doc.Find("#drawer").Empty()
	})
	p.OnClick("[data-qa-submit]", func(doc *goquery.Document) {
		label, _ := doc.Find("[data-qa-volume-label] input").Attr("value")
		fc.created = label
		doc.Find("#drawer").Empty()
		p.After(30*time.Millisecond, func(doc *goquery.Document) {
			doc.Find("#volumes").AppendHtml(`<tr data-qa-volume-cell="` + label + `"><td data-qa-volume-cell-label>` + label + `</td></tr>`)
		})
	})
	p.OnClick("[data-qa-action-menu]", func(doc *goquery.Document) {
		doc.Find("#action-menu").RemoveAttr("hidden")
	})
	p.OnClick(`[data-qa-action-menu-item="Delete"]`, func(doc *goquery.Document) {
		doc.Find("#action-menu").SetAttr("hidden", "")
		doc.Find("#dialog").SetHtml(deleteDialog)
	})
	p.OnClick("[data-qa-confirm]", func(doc *goquery.Document) {
		doc.Find("#dialog").Empty()
		p.After(40*time.Millisecond, func(doc *goquery.Document) {
			doc.Find(`[data-qa-volume-cell="vol-a"]`).Remove()
		})
	})
	p.OnClick("[data-qa-cancel]", func(doc *goquery.Document) {
		doc.Find("#dialog").Empty()
	})
	p.OnClick("[data-qa-tab]", func(doc *goquery.Document) {
		doc.Find("[data-qa-tab]").SetAttr("aria-selected", "false")
		doc.Find(`[data-qa-tab="Settings"]`).SetAttr("aria-selected", "true")
	})
	p.OnClick("[data-qa-user-menu]", func(doc *goquery.Document) {
		doc.Find("#user-menu").RemoveAttr("hidden")
	})
	return fc
}

func TestNavigate(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	require.NoError(t, fc.helper.Navigate(context.Background(), "/volumes"))
	u, err := fc.page.URL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://cloud.example.com/volumes", u)
}

func TestCreateVolumeThroughCreateMenu(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)

	err := fc.helper.CreateVolume(context.Background(), VolumeConfig{Label: "ASD123", Size: 20, Region: "us-east"})
	require.NoError(t, err)
	assert.Equal(t, "ASD123", fc.created)

	n, err := fc.page.Count(context.Background(), nil, `[data-qa-volume-cell="ASD123"]`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteVolume(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)

	require.NoError(t, fc.helper.DeleteVolume(context.Background(), "vol-a"))
	n, err := fc.page.Count(context.Background(), nil, "[data-qa-volume-cell]")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestActionMenuThatStaysOpenFailsPostcondition(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	row := fc.helper.Pages().Volumes.Cell("vol-a")

	// Edit has no handler, so the menu never closes.
	err := fc.helper.SelectActionMenuItem(context.Background(), row, "Edit")
	require.Error(t, err)

	var pce *PostConditionError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "menu closed", pce.Expected)
	assert.Contains(t, pce.Observed, "still present")
	assert.ErrorIs(t, err, wait.ErrTimeout)
}

func TestDeleteMissingRowNamesLocator(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)

	err := fc.helper.DeleteVolume(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, wait.ErrLocatorNotFound)
	assert.Contains(t, err.Error(), `[data-qa-volume-cell="nope"]`)
}

func TestCancelDialogKeepsRow(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	ctx := context.Background()
	row := fc.helper.Pages().Volumes.Cell("vol-a")

	require.NoError(t, fc.helper.SelectActionMenuItem(ctx, row, "Delete"))
	require.NoError(t, fc.helper.CancelDialog(ctx))
	n, err := fc.page.Count(ctx, nil, `[data-qa-volume-cell="vol-a"]`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChangeTab(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	require.NoError(t, fc.helper.ChangeTab(context.Background(), "Settings"))
	err := fc.helper.ChangeTab(context.Background(), "Summary")

	var pce *PostConditionError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, `aria-selected="false"`, pce.Observed)
}

func TestOpenAndCloseDrawer(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	ctx := context.Background()

	require.NoError(t, fc.helper.SelectCreateMenuItem(ctx, "Volume"))
	require.NoError(t, fc.helper.FillField(ctx, fc.helper.Pages().Volumes.LabelField, "draft"))
	require.NoError(t, fc.helper.CloseDrawer(ctx))
	assert.Empty(t, fc.created)
}

func TestExpectToast(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	fc.page.After(20*time.Millisecond, func(doc *goquery.Document) {
		doc.Find("[data-qa-toast]").RemoveAttr("hidden").SetText("Volume scheduled for deletion.")
	})
	require.NoError(t, fc.helper.ExpectToast(context.Background(), "Volume scheduled for deletion."))

	err := fc.helper.ExpectToast(context.Background(), "Something else")
	var pce *PostConditionError
	require.ErrorAs(t, err, &pce)
	assert.Contains(t, pce.Observed, "Volume scheduled for deletion.")
}

func TestLogout(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)

	// The fake never leaves the console, so the url postcondition fails.
	err := fc.helper.Logout(context.Background())
	var pce *PostConditionError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "login page", pce.Expected)
}

func TestCancelledContextIsNotPostcondition(t *testing.T) {
	t.Parallel()
	fc := newFakeConsole(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fc.helper.DeleteVolume(ctx, "vol-a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	var pce *PostConditionError
	assert.False(t, errors.As(err, &pce))
}
