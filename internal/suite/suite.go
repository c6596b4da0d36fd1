// Package suite ties one test scenario to a pooled credential, a fixture
// client and a browser session, and tears all of it down when the test
// ends.
package suite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/action"
	"github.com/tomyan/consolecap/internal/config"
	"github.com/tomyan/consolecap/internal/credentials"
	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/fixture"
	"github.com/tomyan/consolecap/internal/page"
	"github.com/tomyan/consolecap/internal/wait"
)

// Env is shared by every scenario in a suite.
type Env struct {
	Config *config.Config
	Store  credentials.Store
	// Driver is the browser session. Scenarios that only use the API may
	// leave it nil.
	Driver   driver.Driver
	Logger   *zap.Logger
	Recorder *Recorder
	// FixtureOptions are applied after the ones derived from Config.
	FixtureOptions []fixture.ClientOption
}

// Scenario is the per-test state Setup builds.
type Scenario struct {
	Name       string
	Credential credentials.Credential
	Fixtures   *fixture.Client
	Pages      *page.Console
	Waiter     *wait.Waiter
	Actions    *action.Helper
	Logger     *zap.Logger

	t   testing.TB
	ctx context.Context
	err error
}

// Setup checks out a credential for name, builds the fixture client with
// its token and, when env has a driver, the page objects, waiter and action
// helper. The registered cleanup removes tracked fixtures, checks the
// credential back in and records the result. Cleanup failures are logged
// and recorded but never fail the test.
func Setup(t testing.TB, name string, env Env) *Scenario {
	t.Helper()

	cfg := env.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("scenario", name))
	policy := cfg.WaitPolicy()

	ctx, cancel := context.WithCancel(context.Background())
	started := time.Now()

	acquireCtx, acquireCancel := context.WithTimeout(ctx, policy.Timeout(wait.Minute).Duration)
	cred, err := credentials.Acquire(acquireCtx, env.Store, name, policy.PollInterval())
	acquireCancel()
	if err != nil {
		cancel()
		t.Fatalf("checking out credential for %s: %v", name, err)
	}
	logger.Info("credential checked out", zap.String("username", cred.Username))

	if cred.Token == "" {
		checkin(env.Store, name, logger)
		cancel()
		t.Fatalf("credential %s has no API token", cred.Username)
	}

	opts := append(cfg.FixtureOptions(logger), env.FixtureOptions...)
	s := &Scenario{
		Name:       name,
		Credential: cred,
		Fixtures:   fixture.NewClient(cred.Token, opts...),
		Logger:     logger,
		t:          t,
		ctx:        ctx,
	}
	if env.Driver != nil {
		s.Pages = page.New(env.Driver)
		s.Waiter = wait.New(env.Driver, policy, wait.WithLogger(logger))
		s.Actions = action.New(env.Driver, s.Waiter, s.Pages, cfg.BaseURL, action.WithLogger(logger))
	}

	t.Cleanup(func() {
		defer cancel()
		res := Result{
			Name:       name,
			Passed:     !t.Failed(),
			Started:    started,
			Credential: cred.Username,
		}
		if s.err != nil {
			res.Error = s.err.Error()
		} else if t.Failed() {
			res.Error = "failed"
		}

		cleanupCtx := context.Background()
		if t.Failed() && env.Driver != nil && env.Recorder != nil {
			res.Screenshot = screenshot(cleanupCtx, env.Driver, env.Recorder, name, logger)
		}

		report := s.Fixtures.Cleanup(cleanupCtx)
		for _, e := range report.Errors() {
			res.CleanupErrors = append(res.CleanupErrors, e.Error())
		}
		if err := report.Err(); err != nil {
			t.Logf("fixture cleanup incomplete: %v", err)
		}

		if err := checkin(env.Store, name, logger); err != nil {
			t.Errorf("checking in credential for %s: %v", name, err)
		}

		res.DurationMS = time.Since(started).Milliseconds()
		if env.Recorder != nil {
			if err := env.Recorder.Record(res); err != nil {
				logger.Error("recording result", zap.Error(err))
			}
		}
	})
	return s
}

// Context returns the scenario's context. It is cancelled once cleanup
// has finished.
func (s *Scenario) Context() context.Context { return s.ctx }

// Must fails the scenario with err, keeping it for the result record.
func (s *Scenario) Must(err error) {
	s.t.Helper()
	if err == nil {
		return
	}
	if s.err == nil {
		s.err = err
	}
	s.t.Fatalf("%s: %v", s.Name, err)
}

// Errorf records a failure without stopping the scenario.
func (s *Scenario) Errorf(format string, args ...interface{}) {
	s.t.Helper()
	err := fmt.Errorf(format, args...)
	if s.err == nil {
		s.err = err
	}
	s.t.Error(err)
}

func checkin(store credentials.Store, name string, logger *zap.Logger) error {
	err := store.Checkin(context.Background(), name)
	if errors.Is(err, credentials.ErrNotCheckedOut) {
		logger.Warn("credential already checked in")
		return nil
	}
	if err == nil {
		logger.Info("credential checked in")
	}
	return err
}

func screenshot(ctx context.Context, d driver.Driver, rec *Recorder, name string, logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	png, err := d.Screenshot(ctx)
	if err != nil {
		logger.Warn("failure screenshot", zap.Error(err))
		return ""
	}
	path, err := rec.SaveScreenshot(name, png)
	if err != nil {
		logger.Warn("failure screenshot", zap.Error(err))
		return ""
	}
	logger.Info("failure screenshot saved", zap.String("path", path))
	return path
}
