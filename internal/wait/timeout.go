package wait

import (
	"fmt"
	"math"
	"time"
)

// Tier is a named timeout budget.
type Tier int

const (
	Short Tier = iota
	Normal
	Long
	Minute
	// CustomTier marks a timeout built with Custom.
	CustomTier
)

var tierNames = [...]string{"short", "normal", "long", "minute", "custom"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier converts a tier name back to a Tier.
func ParseTier(s string) (Tier, error) {
	for i, n := range tierNames[:CustomTier] {
		if n == s {
			return Tier(i), nil
		}
	}
	return 0, fmt.Errorf("unknown timeout tier %q (want short, normal, long or minute)", s)
}

// Tiers lists the named tiers in increasing order.
func Tiers() []Tier {
	return []Tier{Short, Normal, Long, Minute}
}

var (
	localBudgets = [...]time.Duration{5 * time.Second, 12 * time.Second, 30 * time.Second, 60 * time.Second}
	gridBudgets  = [...]time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 75 * time.Second}
)

// DefaultPoll is the interval between condition checks.
const DefaultPoll = 250 * time.Millisecond

// Timeout is a resolved wait budget.
type Timeout struct {
	Tier     Tier
	Duration time.Duration
}

// Custom passes d through without scaling.
func Custom(d time.Duration) Timeout {
	return Timeout{Tier: CustomTier, Duration: d}
}

func (t Timeout) String() string {
	return fmt.Sprintf("%s tier, %s", t.Tier, t.Duration)
}

// Policy maps tiers to durations for one execution environment.
type Policy struct {
	// Grid selects the longer budgets used against remote browsers.
	Grid bool
	// Multiplier scales every tier; zero means 1.
	Multiplier float64
	// Poll is the interval between checks; zero means DefaultPoll.
	Poll time.Duration
}

// Timeout returns the scaled budget for tier.
func (p Policy) Timeout(tier Tier) Timeout {
	budgets := localBudgets
	if p.Grid {
		budgets = gridBudgets
	}
	if tier < 0 || tier >= CustomTier {
		tier = Normal
	}
	m := p.Multiplier
	if m <= 0 {
		m = 1
	}
	d := time.Duration(math.Round(float64(budgets[tier]) * m))
	return Timeout{Tier: tier, Duration: d}
}

// PollInterval returns the configured poll interval or DefaultPoll.
func (p Policy) PollInterval() time.Duration {
	if p.Poll <= 0 {
		return DefaultPoll
	}
	return p.Poll
}
