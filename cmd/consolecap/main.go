package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/browser"
	"github.com/tomyan/consolecap/internal/config"
	"github.com/tomyan/consolecap/internal/credentials"
	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/wait"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitError      = 1
	ExitConnFailed = 2
	ExitTimeout    = 3
)

// OpenFunc opens a browser driver and returns the function that releases it.
type OpenFunc func(ctx context.Context, env *config.Config, logger *zap.Logger) (driver.Driver, func() error, error)

// Config holds the CLI configuration.
type Config struct {
	// Env is the loaded environment; run fills it in.
	Env     *config.Config
	Timeout time.Duration
	Output  string // json, ndjson, text
	Quiet   bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger overrides the logger built from the environment's log level.
	Logger *zap.Logger

	// Open overrides browser.Open for testing.
	Open OpenFunc
}

// DefaultConfig returns the default CLI configuration. The environment is
// loaded later from the config file, profile and CONSOLECAP_* variables.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Output:  "json",
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func main() {
	cfg := DefaultConfig()
	code := run(os.Args[1:], cfg)
	if cfg.Logger != nil {
		cfg.Logger.Sync()
	}
	os.Exit(code)
}

// flagValues stores values parsed from CLI flags before they are layered
// over the loaded environment.
type flagValues struct {
	configPath string
	profile    string
	host       string
	port       int
	backend    string
	baseURL    string
	apiURL     string
	grid       bool
	headless   bool
	logLevel   string
	devLog     bool
}

func run(args []string, cfg *Config) int {
	var fv flagValues
	fs := flag.NewFlagSet("consolecap", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	fs.StringVar(&fv.configPath, "config", "", "Config file (env: CONSOLECAP_CONFIG, default consolecap.toml)")
	fs.StringVar(&fv.profile, "profile", "", "Named profile from the config file (env: CONSOLECAP_PROFILE)")
	fs.StringVar(&fv.host, "host", "", "Chrome debug host (env: CONSOLECAP_HOST)")
	fs.IntVar(&fv.port, "port", 0, "Chrome debug port (env: CONSOLECAP_PORT)")
	fs.StringVar(&fv.backend, "backend", "", "Browser backend: cdp, chromedp, rod (env: CONSOLECAP_BACKEND)")
	fs.StringVar(&fv.baseURL, "base-url", "", "Console origin (env: CONSOLECAP_BASE_URL)")
	fs.StringVar(&fv.apiURL, "api-url", "", "API root for fixtures (env: CONSOLECAP_API_URL)")
	fs.BoolVar(&fv.grid, "grid", false, "Use grid timeouts and never launch Chrome (env: CONSOLECAP_GRID)")
	fs.BoolVar(&fv.headless, "headless", true, "Launch Chrome headless (env: CONSOLECAP_HEADLESS)")
	fs.StringVar(&fv.logLevel, "log-level", "", "Log level (env: CONSOLECAP_LOG_LEVEL)")
	fs.BoolVar(&fv.devLog, "dev-log", false, "Human-readable console logs")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Command timeout")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "Output format: json, ndjson, text")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "Suppress logs")

	fs.Usage = func() { printUsage(cfg, fs) }

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	// Precedence: defaults < config file < profile < env vars < CLI flags
	env, err := loadEnv(fv.configPath, fv.profile)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	applyFlags(env, &fv, explicit)
	if err := env.Validate(); err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	cfg.Env = env

	if cfg.Logger == nil {
		if cfg.Quiet {
			cfg.Logger = zap.NewNop()
		} else {
			logger, err := config.NewLogger(env.LogLevel, fv.devLog)
			if err != nil {
				fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
				return ExitError
			}
			cfg.Logger = logger
		}
	}

	remaining := fs.Args()
	if len(remaining) < 1 {
		printUsage(cfg, fs)
		return ExitError
	}

	info, ok := commands[remaining[0]]
	if !ok {
		fmt.Fprintf(cfg.Stderr, "unknown command: %s\n", remaining[0])
		return ExitError
	}
	return info.Run(cfg, remaining[1:])
}

func loadEnv(path, profile string) (*config.Config, error) {
	if path == "" {
		return config.Load(profile)
	}
	return config.LoadFile(path, profile)
}

// applyFlags layers explicitly set flags over the loaded environment.
func applyFlags(env *config.Config, fv *flagValues, explicit map[string]bool) {
	if explicit["host"] {
		env.Host = fv.host
	}
	if explicit["port"] {
		env.Port = fv.port
	}
	if explicit["backend"] {
		env.Backend = fv.backend
	}
	if explicit["base-url"] {
		env.BaseURL = fv.baseURL
	}
	if explicit["api-url"] {
		env.APIURL = fv.apiURL
	}
	if explicit["grid"] {
		env.Grid = fv.grid
	}
	if explicit["headless"] {
		env.Headless = fv.headless
	}
	if explicit["log-level"] {
		env.LogLevel = fv.logLevel
	}
}

// store opens the credential pool file of the environment.
func store(cfg *Config) *credentials.FileStore {
	return credentials.NewFileStore(cfg.Env.CredentialsFile, credentials.WithLogger(cfg.Logger))
}

func openBrowser(ctx context.Context, env *config.Config, logger *zap.Logger) (driver.Driver, func() error, error) {
	s, err := browser.Open(ctx, env, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// sessionFunc is the work a command does against an open browser.
type sessionFunc func(ctx context.Context, d driver.Driver, w *wait.Waiter) (interface{}, error)

// withSession executes fn against an open browser and a waiter using the
// environment's timeout policy, all within --timeout.
func withSession(cfg *Config, fn sessionFunc) int {
	return withSessionFor(cfg, 0, fn)
}

// withSessionFor is withSession for commands that wait: the deadline is
// --timeout plus budget, so a wait tier longer than --timeout still runs
// to its own timeout and fails with a *wait.TimeoutError.
func withSessionFor(cfg *Config, budget time.Duration, fn sessionFunc) int {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+budget)
	defer cancel()

	open := cfg.Open
	if open == nil {
		open = openBrowser
	}
	d, closeFn, err := open(ctx, cfg.Env, cfg.Logger)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitConnFailed
	}
	defer func() {
		if err := closeFn(); err != nil {
			cfg.Logger.Warn("closing browser", zap.Error(err))
		}
	}()

	w := wait.New(d, cfg.Env.WaitPolicy(), wait.WithLogger(cfg.Logger))
	result, err := fn(ctx, d, w)
	if err != nil {
		return fail(ctx, cfg, err)
	}
	return outputResult(cfg, result)
}

// fail reports err and picks the exit code for it.
func fail(ctx context.Context, cfg *Config, err error) int {
	fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
	if errors.Is(err, wait.ErrTimeout) || ctx.Err() == context.DeadlineExceeded {
		return ExitTimeout
	}
	return ExitError
}
