package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/wait"
)

// AssertResult is returned by the assert command on success.
type AssertResult struct {
	Passed    bool   `json:"passed"`
	Assertion string `json:"assertion"`
}

func cmdAssert(cfg *Config, args []string) int {
	if len(args) < 1 {
		printAssertUsage(cfg)
		return ExitError
	}

	sub, rest := args[0], args[1:]
	need := map[string]int{"text": 2, "count": 2, "exists": 1, "visible": 1, "url": 1}
	n, ok := need[sub]
	if !ok {
		fmt.Fprintf(cfg.Stderr, "unknown assertion: %s\n", sub)
		printAssertUsage(cfg)
		return ExitError
	}
	if len(rest) < n {
		printAssertUsage(cfg)
		return ExitError
	}

	return withSession(cfg, func(ctx context.Context, d driver.Driver, w *wait.Waiter) (interface{}, error) {
		var desc string
		var err error
		switch sub {
		case "text":
			desc = fmt.Sprintf("text of %s is %q", rest[0], rest[1])
			err = assertText(ctx, d, rest[0], rest[1])
		case "count":
			desc = fmt.Sprintf("%s matches %s elements", rest[0], rest[1])
			err = assertCount(ctx, d, rest[0], rest[1])
		case "exists":
			desc = rest[0] + " exists"
			err = assertExists(ctx, d, rest[0])
		case "visible":
			desc = rest[0] + " is visible"
			err = assertVisible(ctx, d, rest[0])
		case "url":
			desc = "url contains " + rest[0]
			err = assertURL(ctx, d, rest[0])
		}
		if err != nil {
			return nil, fmt.Errorf("assertion failed: %w", err)
		}
		return AssertResult{Passed: true, Assertion: desc}, nil
	})
}

func printAssertUsage(cfg *Config) {
	fmt.Fprintln(cfg.Stderr, "usage: consolecap assert <assertion> [args...]")
	fmt.Fprintln(cfg.Stderr)
	fmt.Fprintln(cfg.Stderr, "assertions:")
	fmt.Fprintln(cfg.Stderr, "  text <selector> <expected>     First match has exactly this text")
	fmt.Fprintln(cfg.Stderr, "  count <selector> <n>           Selector matches n elements")
	fmt.Fprintln(cfg.Stderr, "  exists <selector>              Selector matches at least one element")
	fmt.Fprintln(cfg.Stderr, "  visible <selector>             First match is visible")
	fmt.Fprintln(cfg.Stderr, "  url <substring>                Page URL contains substring")
}

func first(ctx context.Context, d driver.Driver, selector string) (driver.Ref, error) {
	h, err := cliLocator(d, selector).Resolve(ctx)
	if err != nil {
		return nil, err
	}
	ref, ok := h.First()
	if !ok {
		return nil, fmt.Errorf("no element matches %s", selector)
	}
	return ref, nil
}

func assertText(ctx context.Context, d driver.Driver, selector, want string) error {
	ref, err := first(ctx, d, selector)
	if err != nil {
		return err
	}
	got, err := d.Text(ctx, ref)
	if err != nil {
		return err
	}
	if strings.TrimSpace(got) != want {
		return fmt.Errorf("text of %s is %q, want %q", selector, got, want)
	}
	return nil
}

func assertCount(ctx context.Context, d driver.Driver, selector, wantStr string) error {
	want, err := strconv.Atoi(wantStr)
	if err != nil {
		return fmt.Errorf("invalid count %q", wantStr)
	}
	got, err := d.Count(ctx, nil, selector)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%s matches %d elements, want %d", selector, got, want)
	}
	return nil
}

func assertExists(ctx context.Context, d driver.Driver, selector string) error {
	_, err := first(ctx, d, selector)
	return err
}

func assertVisible(ctx context.Context, d driver.Driver, selector string) error {
	ref, err := first(ctx, d, selector)
	if err != nil {
		return err
	}
	visible, err := d.Visible(ctx, ref)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%s is not visible", selector)
	}
	return nil
}

func assertURL(ctx context.Context, d driver.Driver, substr string) error {
	u, err := d.URL(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(u, substr) {
		return fmt.Errorf("url %q does not contain %q", u, substr)
	}
	return nil
}
