package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tomyan/consolecap/internal/config"
	"github.com/tomyan/consolecap/internal/credentials"
	"github.com/tomyan/consolecap/internal/driver/drivertest"
	"github.com/tomyan/consolecap/internal/fixture"
	"github.com/tomyan/consolecap/internal/fixture/fixturetest"
)

const volumesHTML = `<html><body>
<div id="drawer"></div>
<div id="dialog"></div>
<table id="volumes"></table>
<ul id="action-menu" hidden>
  <li data-qa-action-menu-item="Edit">Edit</li>
  <li data-qa-action-menu-item="Delete">Delete</li>
</ul>
</body></html>`

const deleteDialog = `<h2 data-qa-dialog-title>Delete Volume</h2>
<button data-qa-confirm>Delete</button>
<button data-qa-cancel>Cancel</button>`

// fastConfig scales the tiers down to Normal=240ms Long=600ms Minute=1.2s.
func fastConfig(apiURL string) *config.Config {
	cfg := config.Default()
	cfg.BaseURL = "https://cloud.example.com"
	cfg.APIURL = apiURL
	cfg.TimeoutMultiplier = 0.02
	cfg.PollInterval = config.Duration{Duration: 10 * time.Millisecond}
	cfg.SettleDelay = config.Duration{Duration: 10 * time.Millisecond}
	cfg.RequestsPerSecond = 1000
	return cfg
}

func seededStore(t *testing.T, creds ...credentials.Credential) *credentials.FileStore {
	t.Helper()
	store := credentials.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if len(creds) == 0 {
		creds = []credentials.Credential{{Username: "ci-user-1", Password: "pw", Token: fixturetest.Token}}
	}
	require.NoError(t, store.Seed(context.Background(), creds))
	return store
}

// volumesConsole renders the volumes list from the fake API shortly after
// each navigation and removes rows whose deletion is confirmed.
func volumesConsole(t *testing.T, api *fixturetest.Server) *drivertest.Page {
	p := drivertest.New(volumesHTML)
	t.Cleanup(p.Close)

	var mu sync.Mutex
	var pending string
	p.OnNavigate(func(url string, doc *goquery.Document) {
		if !strings.HasSuffix(url, "/volumes") {
			return
		}
		vols := api.Objects("/volumes")
		p.After(30*time.Millisecond, func(doc *goquery.Document) {
			var rows strings.Builder
			for _, v := range vols {
				label := fmt.Sprint(v["label"])
				fmt.Fprintf(&rows, `<tr data-qa-volume-cell=%q><td data-qa-volume-cell-label>%s</td><td><button data-qa-action-menu>...</button></td></tr>`, label, label)
			}
			doc.Find("#volumes").SetHtml(rows.String())
		})
	})
	p.OnClick("[data-qa-action-menu]", func(doc *goquery.Document) {
		doc.Find("#action-menu").RemoveAttr("hidden")
		mu.Lock()
		pending, _ = doc.Find("[data-qa-volume-cell]").First().Attr("data-qa-volume-cell")
		mu.Unlock()
	})
	p.OnClick(`[data-qa-action-menu-item="Delete"]`, func(doc *goquery.Document) {
		doc.Find("#action-menu").SetAttr("hidden", "")
		doc.Find("#dialog").SetHtml(deleteDialog)
	})
	p.OnClick("[data-qa-confirm]", func(doc *goquery.Document) {
		doc.Find("#dialog").Empty()
		mu.Lock()
		label := pending
		mu.Unlock()
		p.After(50*time.Millisecond, func(doc *goquery.Document) {
			doc.Find(fmt.Sprintf("[data-qa-volume-cell=%q]", label)).Remove()
		})
	})
	return p
}

func TestVolumeScenario(t *testing.T) {
	api := fixturetest.NewServer(t)
	store := seededStore(t)
	p := volumesConsole(t, api)
	rec, err := NewRecorder(t.TempDir(), WithRunID("run-1"))
	require.NoError(t, err)

	env := Env{
		Config:   fastConfig(api.URL),
		Store:    store,
		Driver:   p,
		Logger:   zaptest.NewLogger(t),
		Recorder: rec,
	}

	var label string
	t.Run("create via API, delete via UI", func(t *testing.T) {
		s := Setup(t, "volumes.spec", env)
		ctx := s.Context()

		creds, err := store.List(ctx)
		require.NoError(t, err)
		assert.True(t, creds[0].InUse)
		assert.Equal(t, "volumes.spec", creds[0].Spec)

		label = fixture.Label("")
		_, err = s.Fixtures.CreateVolume(ctx, fixture.VolumeOptions{Label: label, Size: 10, Region: "us-east"})
		s.Must(err)

		s.Must(s.Actions.Navigate(ctx, "/volumes"))
		cell := s.Pages.Volumes.Cell(label)
		s.Must(s.Waiter.ForVisible(ctx, cell, s.Waiter.Normal()))

		s.Must(s.Actions.DeleteVolume(ctx, label))
		s.Must(s.Waiter.ForExist(ctx, cell, s.Waiter.Long(), true))
	})

	require.True(t, strings.HasPrefix(label, fixture.LabelPrefix))

	// Tracked fixtures were removed and the credential returned.
	assert.Empty(t, api.Objects("/volumes"))
	creds, err := store.List(context.Background())
	require.NoError(t, err)
	assert.False(t, creds[0].InUse)
	assert.Empty(t, creds[0].Spec)

	results, err := ReadResults(filepath.Join(rec.Dir(), ResultsFile))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "volumes.spec", results[0].Name)
	assert.True(t, results[0].Passed)
	assert.Equal(t, "ci-user-1", results[0].Credential)
	assert.Empty(t, results[0].Screenshot)
	assert.Empty(t, results[0].CleanupErrors)
}

// recordingT captures failures and cleanups so a failing scenario can be
// driven without failing the enclosing test.
type recordingT struct {
	testing.TB
	mu       sync.Mutex
	failed   bool
	errors   []string
	cleanups []func()
}

func (r *recordingT) Helper() {}

func (r *recordingT) Cleanup(f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, f)
}

func (r *recordingT) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *recordingT) Error(args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = true
	r.errors = append(r.errors, fmt.Sprint(args...))
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.Error(fmt.Sprintf(format, args...))
}

func (r *recordingT) Logf(format string, args ...interface{}) {}

func (r *recordingT) runCleanups() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

func TestFailedScenarioIsRecordedWithScreenshot(t *testing.T) {
	api := fixturetest.NewServer(t)
	store := seededStore(t)
	p := drivertest.New(volumesHTML)
	t.Cleanup(p.Close)
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	rt := &recordingT{TB: t}
	s := Setup(rt, "broken.spec", Env{
		Config:   fastConfig(api.URL),
		Store:    store,
		Driver:   p,
		Logger:   zaptest.NewLogger(t),
		Recorder: rec,
	})
	_, err = s.Fixtures.CreateDomain(s.Context(), fixture.DomainOptions{Domain: "asd-example.com", SOAEmail: "ops@example.com"})
	require.NoError(t, err)

	s.Errorf("volume %q never appeared", "ASDmissing")
	rt.runCleanups()

	assert.True(t, rt.Failed())
	assert.Empty(t, api.Objects("/domains"))

	results := rec.Results()
	require.Len(t, results, 1)
	res := results[0]
	assert.False(t, res.Passed)
	assert.Equal(t, `volume "ASDmissing" never appeared`, res.Error)
	require.NotEmpty(t, res.Screenshot)
	data, err := os.ReadFile(res.Screenshot)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), data)

	passed, failed := rec.Summary()
	assert.Equal(t, 0, passed)
	assert.Equal(t, 1, failed)

	creds, err := store.List(context.Background())
	require.NoError(t, err)
	assert.False(t, creds[0].InUse)
}

func TestCleanupFailuresAreRecordedNotFatal(t *testing.T) {
	api := fixturetest.NewServer(t)
	store := seededStore(t)
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	rt := &recordingT{TB: t}
	s := Setup(rt, "api-only.spec", Env{
		Config:   fastConfig(api.URL),
		Store:    store,
		Logger:   zaptest.NewLogger(t),
		Recorder: rec,
	})
	assert.Nil(t, s.Actions)

	d, err := s.Fixtures.CreateDomain(s.Context(), fixture.DomainOptions{Domain: "asd-broken.com", SOAEmail: "ops@example.com"})
	require.NoError(t, err)
	api.Fail("DELETE", fmt.Sprintf("/domains/%d", d.ID), 500, -1)

	rt.runCleanups()

	assert.False(t, rt.Failed())
	res := rec.Results()[0]
	assert.True(t, res.Passed)
	require.Len(t, res.CleanupErrors, 1)
	assert.Contains(t, res.CleanupErrors[0], "asd-broken.com")
}

func TestSetupWaitsForAFreeCredential(t *testing.T) {
	api := fixturetest.NewServer(t)
	store := seededStore(t)
	ctx := context.Background()
	_, err := store.Checkout(ctx, "other.spec")
	require.NoError(t, err)

	time.AfterFunc(100*time.Millisecond, func() { store.Checkin(ctx, "other.spec") })

	rt := &recordingT{TB: t}
	s := Setup(rt, "waiting.spec", Env{Config: fastConfig(api.URL), Store: store})
	assert.Equal(t, "ci-user-1", s.Credential.Username)
	rt.runCleanups()
}

func TestRecorderSanitizesScreenshotNames(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), WithRunID("r"))
	require.NoError(t, err)

	path, err := rec.SaveScreenshot("linodes/reboot: happy path", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rec.Dir(), "linodes-reboot-happy-path.png"), path)

	_, err = ReadResults(filepath.Join(rec.Dir(), ResultsFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
