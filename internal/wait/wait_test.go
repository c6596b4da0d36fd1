package wait

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/driver/drivertest"
	"github.com/tomyan/consolecap/internal/locator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const poll = 20 * time.Millisecond

const volumesHTML = `<html><body>
<div data-qa-toast hidden></div>
<table data-qa-volumes></table>
<div data-qa-drawer><span data-qa-drawer-title>Create a Volume</span></div>
</body></html>`

func newWaiter(t *testing.T, p *drivertest.Page) *Waiter {
	t.Cleanup(p.Close)
	return New(p, Policy{Poll: poll}, WithLogger(zaptest.NewLogger(t)))
}

func TestPolicyTiers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		policy Policy
		tier   Tier
		want   time.Duration
	}{
		{"local short", Policy{}, Short, 5 * time.Second},
		{"local normal", Policy{}, Normal, 12 * time.Second},
		{"local long", Policy{}, Long, 30 * time.Second},
		{"local minute", Policy{}, Minute, 60 * time.Second},
		{"grid short", Policy{Grid: true}, Short, 10 * time.Second},
		{"grid minute", Policy{Grid: true}, Minute, 75 * time.Second},
		{"scaled", Policy{Multiplier: 1.5}, Normal, 18 * time.Second},
		{"grid scaled", Policy{Grid: true, Multiplier: 2}, Long, 80 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Timeout(tt.tier)
			assert.Equal(t, tt.want, got.Duration)
			assert.Equal(t, tt.tier, got.Tier)
		})
	}
	assert.Equal(t, Timeout{Tier: CustomTier, Duration: 3 * time.Second}, Custom(3*time.Second))
	assert.Equal(t, DefaultPoll, Policy{}.PollInterval())
}

func TestParseTier(t *testing.T) {
	t.Parallel()
	for _, tier := range Tiers() {
		got, err := ParseTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, got)
	}
	_, err := ParseTier("custom")
	assert.Error(t, err)
}

func TestForVisibleAppearsLater(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	toast := locator.On(p, "base").QA("toast")

	p.After(60*time.Millisecond, func(doc *goquery.Document) {
		doc.Find("[data-qa-toast]").RemoveAttr("hidden").SetText("Volume created")
	})

	require.NoError(t, w.ForVisible(context.Background(), toast, Custom(2*time.Second)))
	require.NoError(t, w.ForTextEqual(context.Background(), toast, "Volume created", w.Short()))
	require.NoError(t, w.ForTextMatch(context.Background(), toast, regexp.MustCompile(`^Volume`), w.Short()))
}

func TestTimeoutBounds(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	missing := locator.On(p, "volumes").QAValue("volume-cell", "never")
	budget := 200 * time.Millisecond

	start := time.Now()
	err := w.ForVisible(context.Background(), missing, Custom(budget))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, budget)
	// One poll interval of slack plus scheduling noise.
	assert.Less(t, elapsed, budget+poll+150*time.Millisecond)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "volumes", te.Page)
	assert.Equal(t, `[data-qa-volume-cell="never"]`, te.Selector)
	assert.Equal(t, CustomTier, te.Tier)
	assert.Contains(t, err.Error(), `[data-qa-volume-cell="never"]`)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, ErrLocatorNotFound)
}

func TestInvertedWaitSucceedsImmediately(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	gone := locator.On(p, "volumes").QAValue("volume-cell", "deleted")

	start := time.Now()
	require.NoError(t, w.ForExist(context.Background(), gone, Custom(5*time.Second), true))
	assert.Less(t, time.Since(start), poll)
}

func TestInvertedTimeoutIsNotLocatorNotFound(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	drawer := locator.On(p, "base").QA("drawer-title")

	err := w.ForExist(context.Background(), drawer, Custom(50*time.Millisecond), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrLocatorNotFound))
}

func TestForInvisible(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	b := locator.On(p, "base")

	require.NoError(t, w.ForInvisible(context.Background(), b.QA("toast"), w.Short()))

	p.After(40*time.Millisecond, func(doc *goquery.Document) {
		doc.Find("[data-qa-drawer]").SetAttr("style", "display: none")
	})
	require.NoError(t, w.ForInvisible(context.Background(), b.QA("drawer-title"), w.Short()))
}

func TestForCountAndAttribute(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	b := locator.On(p, "volumes")

	p.After(30*time.Millisecond, func(doc *goquery.Document) {
		doc.Find("[data-qa-volumes]").
			AppendHtml(`<tr data-qa-volume-cell="a" data-qa-status="creating"></tr><tr data-qa-volume-cell="b"></tr>`)
	})
	p.After(80*time.Millisecond, func(doc *goquery.Document) {
		doc.Find(`[data-qa-volume-cell="a"]`).SetAttr("data-qa-status", "active")
	})

	require.NoError(t, w.ForCount(context.Background(), b.QA("volume-cell"), 2, w.Short()))
	require.NoError(t, w.ForAttribute(context.Background(), b.QAValue("volume-cell", "a"), "data-qa-status", "active", w.Short()))
}

func TestForURL(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	require.NoError(t, p.Navigate(context.Background(), "https://cloud.example.com/volumes"))

	require.NoError(t, w.ForURL(context.Background(), "/volumes", w.Short()))
	err := w.ForURL(context.Background(), "/domains", Custom(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUntilNamesMessage(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	calls := 0
	err := w.Until(context.Background(), func(context.Context) (bool, error) {
		calls++
		return false, nil
	}, Custom(60*time.Millisecond), "linode to boot")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "linode to boot")
	assert.GreaterOrEqual(t, calls, 2)
}

func TestStaleErrorsKeepPolling(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	calls := 0
	err := w.Until(context.Background(), func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, driver.ErrStale
		}
		return true, nil
	}, w.Short(), "row to settle")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFatalErrorAborts(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	boom := errors.New("websocket closed")
	err := w.Until(context.Background(), func(context.Context) (bool, error) {
		return false, boom
	}, w.Short(), "anything")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestContextCancelAbortsWait(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := w.ForVisible(ctx, locator.On(p, "volumes").QA("missing"), w.Minute())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFuture(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)
	toast := locator.On(p, "base").QA("toast")

	f := w.Start(context.Background(), Visible(toast), w.Short())
	p.After(30*time.Millisecond, func(doc *goquery.Document) {
		doc.Find("[data-qa-toast]").RemoveAttr("hidden")
	})

	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("future did not complete")
	}
	assert.NoError(t, f.Err())
}

func TestFutureCancel(t *testing.T) {
	t.Parallel()
	p := drivertest.New(volumesHTML)
	w := newWaiter(t, p)

	f := w.Start(context.Background(), Exists(locator.On(p, "volumes").QA("missing"), false), w.Minute())
	f.Cancel()
	assert.ErrorIs(t, f.Err(), context.Canceled)
}
