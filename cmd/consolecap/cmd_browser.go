package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/action"
	"github.com/tomyan/consolecap/internal/chrome/launcher"
	"github.com/tomyan/consolecap/internal/credentials"
	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/page"
	"github.com/tomyan/consolecap/internal/wait"
)

// URLResult is returned by goto.
type URLResult struct {
	URL string `json:"url"`
}

// LoginResult is returned by login.
type LoginResult struct {
	Username string `json:"username"`
	URL      string `json:"url"`
}

// PathResult is returned by commands that write a file.
type PathResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// LaunchResult is returned by launch.
type LaunchResult struct {
	Port    int    `json:"port"`
	PID     int    `json:"pid"`
	DataDir string `json:"dataDir"`
}

// LocatorResult describes one page object locator.
type LocatorResult struct {
	Page     string `json:"page"`
	Name     string `json:"name"`
	Selector string `json:"selector"`
	Error    string `json:"error,omitempty"`
}

func helper(cfg *Config, d driver.Driver, w *wait.Waiter) *action.Helper {
	return action.New(d, w, page.New(d), cfg.Env.BaseURL, action.WithLogger(cfg.Logger))
}

func cmdGoto(cfg *Config, args []string) int {
	if len(args) < 1 {
		return cmdMissingArg(cfg, commands["goto"].Usage)
	}
	path := args[0]
	return withSession(cfg, func(ctx context.Context, d driver.Driver, w *wait.Waiter) (interface{}, error) {
		if err := helper(cfg, d, w).Navigate(ctx, path); err != nil {
			return nil, err
		}
		u, err := d.URL(ctx)
		if err != nil {
			return nil, err
		}
		return URLResult{URL: u}, nil
	})
}

func cmdLogin(cfg *Config, args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	spec := fs.String("spec", "cli", "Spec name the credential is checked out under")
	loginURL := fs.String("url", "", "Login page (default <base-url>/login)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}
	if *loginURL == "" {
		*loginURL = strings.TrimRight(cfg.Env.BaseURL, "/") + "/login"
	}

	st := store(cfg)
	return withSession(cfg, func(ctx context.Context, d driver.Driver, w *wait.Waiter) (interface{}, error) {
		cred, err := credentials.Acquire(ctx, st, *spec, w.Policy().PollInterval())
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := st.Checkin(context.Background(), *spec); err != nil {
				cfg.Logger.Warn("checking in credential", zap.Error(err))
			}
		}()
		if err := helper(cfg, d, w).Login(ctx, *loginURL, cred.Username, cred.Password); err != nil {
			return nil, err
		}
		u, err := d.URL(ctx)
		if err != nil {
			return nil, err
		}
		return LoginResult{Username: cred.Username, URL: u}, nil
	})
}

func cmdScreenshot(cfg *Config, args []string) int {
	if len(args) < 1 {
		return cmdMissingArg(cfg, commands["screenshot"].Usage)
	}
	path := args[0]
	return withSession(cfg, func(ctx context.Context, d driver.Driver, w *wait.Waiter) (interface{}, error) {
		png, err := d.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return nil, fmt.Errorf("writing screenshot: %w", err)
		}
		return PathResult{Path: path, Bytes: len(png)}, nil
	})
}

func cmdLocators(cfg *Config, args []string) int {
	fs := flag.NewFlagSet("locators", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	only := fs.String("page", "", "Only list locators of this page")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}

	var out []LocatorResult
	invalid := 0
	for _, l := range page.New(nil).Locators() {
		if *only != "" && !strings.EqualFold(l.Page, *only) {
			continue
		}
		res := LocatorResult{Page: l.Page, Name: l.Name, Selector: l.Path()}
		if err := l.Validate(); err != nil {
			res.Error = err.Error()
			invalid++
		}
		out = append(out, res)
	}
	if code := outputResult(cfg, out); code != ExitSuccess {
		return code
	}
	if invalid > 0 {
		fmt.Fprintf(cfg.Stderr, "error: %d invalid locators\n", invalid)
		return ExitError
	}
	return ExitSuccess
}

func cmdLaunch(cfg *Config, args []string) int {
	fs := flag.NewFlagSet("launch", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	block := fs.Bool("wait", false, "Keep Chrome running until interrupted")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	inst, err := launcher.Launch(ctx, launcher.Options{
		ChromePath: cfg.Env.ChromePath,
		Port:       cfg.Env.Port,
		Headless:   cfg.Env.Headless,
		Logger:     cfg.Logger,
	})
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		if errors.Is(err, launcher.ErrChromeNotFound) {
			return ExitError
		}
		return ExitConnFailed
	}

	if code := outputResult(cfg, LaunchResult{Port: inst.Port, PID: inst.PID, DataDir: inst.DataDir}); code != ExitSuccess {
		inst.Stop()
		return code
	}
	if !*block {
		return ExitSuccess
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	if err := inst.Stop(); err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}
