// Package config loads the environment a suite or CLI run targets.
//
// Precedence: built-in defaults < consolecap.toml < named profile in that
// file < CONSOLECAP_* environment variables. The CLI applies its own
// flags on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tomyan/consolecap/internal/fixture"
	"github.com/tomyan/consolecap/internal/wait"
)

// FileName is the config file looked up in the working directory.
const FileName = "consolecap.toml"

// Browser backends.
const (
	BackendCDP      = "cdp"
	BackendChromedp = "chromedp"
	BackendRod      = "rod"
)

// Duration is a time.Duration written as a string ("250ms", "20s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config describes one target environment.
type Config struct {
	BaseURL           string   `toml:"base_url"`
	APIURL            string   `toml:"api_url"`
	Backend           string   `toml:"backend"`
	Host              string   `toml:"host"`
	Port              int      `toml:"port"`
	Headless          bool     `toml:"headless"`
	ChromePath        string   `toml:"chrome_path"`
	Grid              bool     `toml:"grid"`
	TimeoutMultiplier float64  `toml:"timeout_multiplier"`
	PollInterval      Duration `toml:"poll_interval"`
	SettleDelay       Duration `toml:"settle_delay"`
	VolumeRetries     int      `toml:"volume_retries"`
	CredentialsFile   string   `toml:"credentials_file"`
	CredentialsEnv    string   `toml:"credentials_env"`
	ResultsDir        string   `toml:"results_dir"`
	LogLevel          string   `toml:"log_level"`
	RequestsPerSecond int      `toml:"requests_per_second"`

	// Profile is the name of the applied profile, if any.
	Profile string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:           "http://localhost:3000",
		APIURL:            fixture.DefaultBaseURL,
		Backend:           BackendCDP,
		Host:              "localhost",
		Port:              9222,
		Headless:          true,
		TimeoutMultiplier: 1,
		PollInterval:      Duration{wait.DefaultPoll},
		SettleDelay:       Duration{fixture.DefaultSettleDelay},
		VolumeRetries:     fixture.DefaultVolumeRetries,
		CredentialsFile:   "credentials.json",
		CredentialsEnv:    "MANAGER",
		ResultsDir:        "results",
		LogLevel:          "info",
		RequestsPerSecond: fixture.DefaultRateLimit,
	}
}

// profiles is the part of the file holding named overrides.
type profiles struct {
	DefaultProfile string                            `toml:"default_profile"`
	Profiles       map[string]map[string]interface{} `toml:"profiles"`
}

// Load reads $CONSOLECAP_CONFIG, or consolecap.toml in the working
// directory, then applies profile and the environment. A missing file is
// not an error. An empty profile falls back to $CONSOLECAP_PROFILE and
// then the file's default_profile.
func Load(profile string) (*Config, error) {
	path := os.Getenv("CONSOLECAP_CONFIG")
	if path == "" {
		path = FileName
	}
	return LoadFile(path, profile)
}

// LoadFile is Load with an explicit file path.
func LoadFile(path, profile string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var pf profiles
	if data != nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parsing profiles in %s: %w", path, err)
		}
	}

	if profile == "" {
		profile = os.Getenv("CONSOLECAP_PROFILE")
	}
	if profile == "" {
		profile = pf.DefaultProfile
	}
	if profile != "" {
		if err := applyProfile(cfg, pf, profile); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyProfile overlays the named profile. Only keys the profile sets
// change; the rest keep their file or default values.
func applyProfile(cfg *Config, pf profiles, name string) error {
	p, ok := pf.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}
	cfg.Profile = name
	return nil
}

// applyEnv applies CONSOLECAP_* variables. DOCKER, set inside the grid
// containers, selects grid timeouts unless CONSOLECAP_GRID says otherwise.
func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("CONSOLECAP_BASE_URL", &cfg.BaseURL)
	str("CONSOLECAP_API_URL", &cfg.APIURL)
	str("CONSOLECAP_BACKEND", &cfg.Backend)
	str("CONSOLECAP_HOST", &cfg.Host)
	str("CONSOLECAP_CHROME_PATH", &cfg.ChromePath)
	str("CONSOLECAP_CREDENTIALS_FILE", &cfg.CredentialsFile)
	str("CONSOLECAP_CREDENTIALS_ENV", &cfg.CredentialsEnv)
	str("CONSOLECAP_RESULTS_DIR", &cfg.ResultsDir)
	str("CONSOLECAP_LOG_LEVEL", &cfg.LogLevel)

	if getenv("DOCKER") != "" {
		cfg.Grid = true
	}

	var errs []error
	parse := func(key string, fn func(string) error) {
		if v := getenv(key); v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
		}
	}
	parse("CONSOLECAP_PORT", func(v string) (err error) {
		cfg.Port, err = strconv.Atoi(v)
		return err
	})
	parse("CONSOLECAP_HEADLESS", func(v string) (err error) {
		cfg.Headless, err = strconv.ParseBool(v)
		return err
	})
	parse("CONSOLECAP_GRID", func(v string) (err error) {
		cfg.Grid, err = strconv.ParseBool(v)
		return err
	})
	parse("CONSOLECAP_TIMEOUT_MULTIPLIER", func(v string) (err error) {
		cfg.TimeoutMultiplier, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("CONSOLECAP_POLL_INTERVAL", cfg.PollInterval.parse)
	parse("CONSOLECAP_SETTLE_DELAY", cfg.SettleDelay.parse)
	parse("CONSOLECAP_VOLUME_RETRIES", func(v string) (err error) {
		cfg.VolumeRetries, err = strconv.Atoi(v)
		return err
	})
	parse("CONSOLECAP_REQUESTS_PER_SECOND", func(v string) (err error) {
		cfg.RequestsPerSecond, err = strconv.Atoi(v)
		return err
	})
	return errors.Join(errs...)
}

func (d *Duration) parse(v string) error {
	return d.UnmarshalText([]byte(v))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendCDP, BackendChromedp, BackendRod:
	default:
		return fmt.Errorf("unknown backend %q (want cdp, chromedp or rod)", c.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.TimeoutMultiplier <= 0 {
		return fmt.Errorf("timeout_multiplier must be positive, got %v", c.TimeoutMultiplier)
	}
	if c.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.SettleDelay.Duration < 0 {
		return fmt.Errorf("settle_delay must not be negative, got %s", c.SettleDelay)
	}
	if c.VolumeRetries < 0 {
		return fmt.Errorf("volume_retries must not be negative, got %d", c.VolumeRetries)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %d", c.RequestsPerSecond)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// WaitPolicy returns the timeout policy for this environment.
func (c *Config) WaitPolicy() wait.Policy {
	return wait.Policy{
		Grid:       c.Grid,
		Multiplier: c.TimeoutMultiplier,
		Poll:       c.PollInterval.Duration,
	}
}

// FixtureOptions returns the fixture client options for this environment.
func (c *Config) FixtureOptions(logger *zap.Logger) []fixture.ClientOption {
	return []fixture.ClientOption{
		fixture.WithBaseURL(c.APIURL),
		fixture.WithLogger(logger),
		fixture.WithRateLimit(c.RequestsPerSecond),
		fixture.WithSettleDelay(c.SettleDelay.Duration),
		fixture.WithVolumeRetries(uint64(c.VolumeRetries)),
	}
}

// NewLogger builds a JSON production logger at level, or a console
// development logger when development is set.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
