package wait

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("wait timed out")
	// ErrLocatorNotFound matches timeouts of waits for an element to appear.
	ErrLocatorNotFound = errors.New("locator not found")
)

// TimeoutError reports a condition that did not hold within its budget.
type TimeoutError struct {
	Description string
	Selector    string
	Page        string
	Tier        Tier
	Timeout     time.Duration
	Elapsed     time.Duration
	// Last is the most recent non-fatal error seen while polling.
	Last error

	presence bool
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "timed out after %s (%s tier, %s) waiting for %s",
		e.Elapsed.Round(time.Millisecond), e.Tier, e.Timeout, e.Description)
	if e.Selector != "" {
		fmt.Fprintf(&b, " [page %s, selector %s]", e.Page, e.Selector)
	}
	if e.Last != nil {
		fmt.Fprintf(&b, ": last error: %v", e.Last)
	}
	return b.String()
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Is matches ErrLocatorNotFound for presence waits.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrLocatorNotFound && e.presence
}
