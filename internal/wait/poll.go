package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/driver"
)

// Condition is a predicate polled until it holds.
type Condition struct {
	Description string
	Page        string
	Selector    string
	Check       func(ctx context.Context) (bool, error)

	// presence marks waits for something to appear.
	presence bool
}

// Poll checks cond every interval until it holds, ctx ends or timeout
// elapses. The final check is made at the deadline, so a condition that
// never holds fails between Timeout and Timeout plus one interval.
//
// driver.ErrStale from Check counts as "not yet"; any other error aborts.
func Poll(ctx context.Context, log *zap.Logger, interval time.Duration, timeout Timeout, cond Condition) error {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPoll
	}
	start := time.Now()
	deadline := start.Add(timeout.Duration)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	var last error
	for attempt := 1; ; attempt++ {
		ok, err := cond.Check(ctx)
		switch {
		case err == nil && ok:
			log.Debug("wait satisfied",
				zap.String("condition", cond.Description),
				zap.String("selector", cond.Selector),
				zap.Stringer("tier", timeout.Tier),
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("attempts", attempt))
			return nil
		case err != nil && ctx.Err() != nil:
			return fmt.Errorf("waiting for %s: %w", cond.Description, ctx.Err())
		case err != nil && !errors.Is(err, driver.ErrStale):
			return fmt.Errorf("waiting for %s: %w", cond.Description, err)
		case err != nil:
			last = err
		}

		now := time.Now()
		if !now.Before(deadline) {
			elapsed := now.Sub(start)
			log.Debug("wait timed out",
				zap.String("condition", cond.Description),
				zap.String("selector", cond.Selector),
				zap.Stringer("tier", timeout.Tier),
				zap.Duration("timeout", timeout.Duration),
				zap.Duration("elapsed", elapsed))
			return &TimeoutError{
				Description: cond.Description,
				Selector:    cond.Selector,
				Page:        cond.Page,
				Tier:        timeout.Tier,
				Timeout:     timeout.Duration,
				Elapsed:     elapsed,
				Last:        last,
				presence:    cond.presence,
			}
		}

		sleep := interval
		if remaining := deadline.Sub(now); remaining < sleep {
			sleep = remaining
		}
		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", cond.Description, ctx.Err())
		case <-timer.C:
		}
	}
}
