// Package browser opens a driver.Driver for the configured backend,
// attaching to a running Chrome when one is listening and launching one
// otherwise.
package browser

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/chrome"
	"github.com/tomyan/consolecap/internal/chrome/launcher"
	"github.com/tomyan/consolecap/internal/config"
	"github.com/tomyan/consolecap/internal/driver"
	"github.com/tomyan/consolecap/internal/driver/chromedpdriver"
	"github.com/tomyan/consolecap/internal/driver/roddriver"
)

// Session is an open browser driver plus whatever must be torn down with it.
type Session struct {
	driver.Driver
	Backend  string
	Launched bool

	closers []func() error
}

// Close releases the session in reverse order of acquisition.
func (s *Session) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	s.closers = nil
	return err
}

// Open returns a session for cfg.Backend. A Chrome already listening on
// cfg.Host:cfg.Port is reused. In grid mode the browser must already be
// running; nothing is launched.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{Backend: cfg.Backend}

	host, port := cfg.Host, cfg.Port
	if !launcher.IsPortOpen(host, port) {
		if cfg.Grid {
			return nil, fmt.Errorf("no browser at %s:%d in grid mode", host, port)
		}
		inst, err := launcher.Launch(ctx, launcher.Options{
			ChromePath: cfg.ChromePath,
			Port:       port,
			Headless:   cfg.Headless,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		s.Launched = true
		s.closers = append(s.closers, inst.Stop)
		host = "localhost"
	}

	d, closeDriver, err := connect(ctx, cfg.Backend, host, port, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Driver = d
	s.closers = append(s.closers, closeDriver)

	logger.Info("browser session opened",
		zap.String("backend", cfg.Backend),
		zap.String("host", host),
		zap.Int("port", port),
		zap.Bool("launched", s.Launched))
	return s, nil
}

func connect(ctx context.Context, backend, host string, port int, logger *zap.Logger) (driver.Driver, func() error, error) {
	switch backend {
	case config.BackendCDP:
		c, err := chrome.Connect(ctx, host, port, chrome.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		tab, err := c.FirstTab(ctx)
		if err != nil {
			c.Close()
			return nil, nil, err
		}
		return tab, c.Close, nil

	case config.BackendChromedp, config.BackendRod:
		info, err := launcher.DetectRunning(ctx, host, port)
		if err != nil {
			return nil, nil, err
		}
		if backend == config.BackendChromedp {
			d, err := chromedpdriver.New(context.Background(), chromedpdriver.Options{
				RemoteURL: info.WebSocketDebuggerURL,
				Logger:    logger,
			})
			if err != nil {
				return nil, nil, err
			}
			return d, func() error { d.Close(); return nil }, nil
		}
		d, err := roddriver.New(ctx, roddriver.Options{
			ControlURL: info.WebSocketDebuggerURL,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, func() error { d.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}
