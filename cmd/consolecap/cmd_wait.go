package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/locator"
	"github.com/tomyan/consolecap/internal/wait"
)

// WaitResult is returned by the wait command.
type WaitResult struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
	Tier      string `json:"tier"`
	Timeout   string `json:"timeout"`
	ElapsedMS int64  `json:"elapsedMs"`
}

// cliLocator wraps a selector typed on the command line.
func cliLocator(d driver.Driver, selector string) locator.Locator {
	return locator.On(d, "cli").CSS(selector, selector)
}

func cmdWait(cfg *Config, args []string) int {
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	tierName := fs.String("tier", "normal", "Timeout tier: short, normal, long, minute")
	custom := fs.Duration("for", 0, "Explicit timeout, overriding --tier")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}

	remaining := fs.Args()
	if len(remaining) < 2 {
		return cmdMissingArg(cfg, commands["wait"].Usage)
	}
	cond, target := remaining[0], remaining[1]

	tier, err := wait.ParseTier(*tierName)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	timeout := cfg.Env.WaitPolicy().Timeout(tier)
	if *custom > 0 {
		timeout = wait.Custom(*custom)
	}

	var value string
	var count int
	switch cond {
	case "text", "count":
		if len(remaining) < 3 {
			return cmdMissingArg(cfg, fmt.Sprintf("consolecap wait %s <selector> <expected>", cond))
		}
		value = remaining[2]
		if cond == "count" {
			if count, err = strconv.Atoi(value); err != nil || count < 0 {
				fmt.Fprintf(cfg.Stderr, "error: invalid count %q\n", value)
				return ExitError
			}
		}
	case "visible", "invisible", "exists", "gone", "url":
	default:
		fmt.Fprintf(cfg.Stderr, "unknown wait condition: %s\n", cond)
		return ExitError
	}

	budget := timeout.Duration + cfg.Env.WaitPolicy().PollInterval()
	return withSessionFor(cfg, budget, func(ctx context.Context, d driver.Driver, w *wait.Waiter) (interface{}, error) {
		l := cliLocator(d, target)
		start := time.Now()
		var err error
		switch cond {
		case "visible":
			err = w.ForVisible(ctx, l, timeout)
		case "invisible":
			err = w.ForInvisible(ctx, l, timeout)
		case "exists":
			err = w.ForExist(ctx, l, timeout, false)
		case "gone":
			err = w.ForExist(ctx, l, timeout, true)
		case "text":
			err = w.ForTextEqual(ctx, l, value, timeout)
		case "count":
			err = w.ForCount(ctx, l, count, timeout)
		case "url":
			err = w.ForURL(ctx, target, timeout)
		}
		if err != nil {
			return nil, err
		}
		return WaitResult{
			Condition: cond,
			Target:    target,
			Tier:      timeout.Tier.String(),
			Timeout:   timeout.Duration.String(),
			ElapsedMS: time.Since(start).Milliseconds(),
		}, nil
	})
}

// TierResult describes one resolved timeout tier.
type TierResult struct {
	Tier    string `json:"tier"`
	Timeout string `json:"timeout"`
}

// TiersResult is returned by the tiers command.
type TiersResult struct {
	Grid       bool         `json:"grid"`
	Multiplier float64      `json:"multiplier"`
	Poll       string       `json:"poll"`
	Tiers      []TierResult `json:"tiers"`
}

func cmdTiers(cfg *Config) int {
	policy := cfg.Env.WaitPolicy()
	res := TiersResult{
		Grid:       policy.Grid,
		Multiplier: policy.Multiplier,
		Poll:       policy.PollInterval().String(),
	}
	for _, t := range wait.Tiers() {
		res.Tiers = append(res.Tiers, TierResult{Tier: t.String(), Timeout: policy.Timeout(t).Duration.String()})
	}
	return outputResult(cfg, res)
}
